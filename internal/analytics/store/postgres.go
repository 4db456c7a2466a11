package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/url-mapping/internal/analytics"
)

// Postgres writes analytics events to PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) SaveMappingCreated(ctx context.Context, event *analytics.MappingCreatedEvent) error {
	query := `
		INSERT INTO mapping_created_events (short_url, long_url, created_by, created_at, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := p.pool.Exec(ctx, query,
		event.ShortURL,
		event.LongURL,
		event.CreatedBy,
		event.CreatedAt,
		event.ClientIP,
		event.UserAgent,
	)

	return err
}

func (p *Postgres) SaveMappingVisited(ctx context.Context, event *analytics.MappingVisitedEvent) error {
	query := `
		INSERT INTO mapping_visit_events (short_url, long_url, visited_at, client_ip, user_agent, referrer)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := p.pool.Exec(ctx, query,
		event.ShortURL,
		event.LongURL,
		event.VisitedAt,
		event.ClientIP,
		event.UserAgent,
		event.Referrer,
	)

	return err
}

// VisitStats aggregates the visit events of code. A code without visits
// yields zero counts.
func (p *Postgres) VisitStats(ctx context.Context, code string) (*analytics.VisitStats, error) {
	query := `
		SELECT count(*), count(DISTINCT client_ip), max(visited_at)
		FROM mapping_visit_events
		WHERE short_url = $1
	`

	stats := &analytics.VisitStats{ShortURL: code}

	err := p.pool.QueryRow(ctx, query, code).Scan(&stats.Visits, &stats.UniqueIPs, &stats.LastVisitAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, nil
		}

		return nil, err
	}

	return stats, nil
}

var (
	_ analytics.Store         = (*Postgres)(nil)
	_ analytics.VisitReporter = (*Postgres)(nil)
)
