package analytics

import (
	"context"
	"time"
)

// Store persists analytics events.
type Store interface {
	SaveMappingCreated(ctx context.Context, event *MappingCreatedEvent) error
	SaveMappingVisited(ctx context.Context, event *MappingVisitedEvent) error
}

// VisitStats summarizes the recorded visits of one short code.
type VisitStats struct {
	ShortURL    string
	Visits      int64
	UniqueIPs   int64
	LastVisitAt *time.Time
}

// VisitReporter reads visit summaries back from a sink.
type VisitReporter interface {
	VisitStats(ctx context.Context, code string) (*VisitStats, error)
}
