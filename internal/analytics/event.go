package analytics

import "time"

const (
	TopicMappingCreated = "mapping.created"
	TopicMappingVisited = "mapping.visited"
)

// MappingCreatedEvent is emitted once per newly persisted mapping.
type MappingCreatedEvent struct {
	ShortURL  string    `json:"shortUrl"`
	LongURL   string    `json:"longUrl"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ClientIP  string    `json:"clientIp"`
	UserAgent string    `json:"userAgent"`
}

// MappingVisitedEvent is emitted for every successful redirect.
type MappingVisitedEvent struct {
	ShortURL  string    `json:"shortUrl"`
	LongURL   string    `json:"longUrl"`
	VisitedAt time.Time `json:"visitedAt"`
	ClientIP  string    `json:"clientIp"`
	UserAgent string    `json:"userAgent"`
	Referrer  string    `json:"referrer,omitempty"`
}
