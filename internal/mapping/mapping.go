package mapping

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no mapping matches a lookup.
	ErrNotFound = errors.New("url mapping not found")
	// ErrEmptyCode is returned when every character of the derived code was stripped.
	ErrEmptyCode = errors.New("generated short code is empty")
)

// ShortCode is the compact token substituted for a long URL.
type ShortCode string

// Mapping associates a long URL with its short code and usage metadata.
type Mapping struct {
	ID         string
	LongURL    string
	ShortURL   ShortCode
	VisitCount int64
	CreatedBy  string
	CreatedAt  time.Time
}

// Repository is the storage collaborator for mappings.
//
// Lookups are exact matches. When several documents match, implementations
// return the first one in natural order, the same document IncrementVisits
// updates.
type Repository interface {
	FindByLongURL(ctx context.Context, longURL string) (*Mapping, error)
	FindByShortURL(ctx context.Context, code ShortCode) (*Mapping, error)

	// Create inserts a new mapping and sets its ID.
	Create(ctx context.Context, m *Mapping) error

	// IncrementVisits atomically adds one to the visit count of the mapping.
	IncrementVisits(ctx context.Context, code ShortCode) error
}
