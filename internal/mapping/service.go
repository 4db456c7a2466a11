package mapping

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// CodeGenerator derives a short code from a long URL.
type CodeGenerator func(longURL string) ShortCode

// Service implements the shorten and resolve workflows on top of a Repository.
type Service struct {
	repo         Repository
	generateCode CodeGenerator
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a new mapping service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		generateCode: GenerateCode,
		logger:       logger,
		now:          time.Now,
	}
}

// Shorten returns the mapping for longURL, creating it on first use.
// The boolean result reports whether a new mapping was persisted.
//
// The existence check and the insert are separate store calls. Two
// concurrent requests for the same URL can both miss the check and insert
// two mappings; lookups then resolve to the first one.
func (s *Service) Shorten(ctx context.Context, longURL, createdBy string) (*Mapping, bool, error) {
	existing, err := s.repo.FindByLongURL(ctx, longURL)
	if err == nil {
		return existing, false, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	code := s.generateCode(longURL)
	if code == "" {
		return nil, false, ErrEmptyCode
	}

	m := &Mapping{
		LongURL:    longURL,
		ShortURL:   code,
		VisitCount: 0,
		CreatedBy:  createdBy,
		CreatedAt:  s.now().UTC(),
	}

	if err = s.repo.Create(ctx, m); err != nil {
		return nil, false, err
	}

	return m, true, nil
}

// Resolve looks up the mapping for code and counts a visit.
//
// A failed increment is logged and does not prevent the caller from
// redirecting. The returned VisitCount is the value read before the
// increment.
func (s *Service) Resolve(ctx context.Context, code ShortCode) (*Mapping, error) {
	m, err := s.repo.FindByShortURL(ctx, code)
	if err != nil {
		return nil, err
	}

	if err = s.repo.IncrementVisits(ctx, code); err != nil {
		s.logger.Error("failed to increment visit count",
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}

	return m, nil
}

// Lookup returns the mapping for code without counting a visit.
func (s *Service) Lookup(ctx context.Context, code ShortCode) (*Mapping, error) {
	return s.repo.FindByShortURL(ctx, code)
}
