package store

import (
	"context"

	"github.com/serroba/url-mapping/internal/analytics"
	"go.uber.org/zap"
)

// Noop logs events instead of persisting them.
type Noop struct {
	logger *zap.Logger
}

func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveMappingCreated(_ context.Context, event *analytics.MappingCreatedEvent) error {
	n.logger.Info("mapping created",
		zap.String("shortUrl", event.ShortURL),
		zap.String("longUrl", event.LongURL),
		zap.String("createdBy", event.CreatedBy),
		zap.Time("createdAt", event.CreatedAt),
	)

	return nil
}

func (n *Noop) SaveMappingVisited(_ context.Context, event *analytics.MappingVisitedEvent) error {
	n.logger.Info("mapping visited",
		zap.String("shortUrl", event.ShortURL),
		zap.Time("visitedAt", event.VisitedAt),
		zap.String("referrer", event.Referrer),
	)

	return nil
}

var _ analytics.Store = (*Noop)(nil)
