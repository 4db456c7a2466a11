// Package analytics carries mapping lifecycle events from the HTTP service
// to the analytics worker.
package analytics

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/url-mapping/internal/messaging"
	"go.uber.org/zap"
)

// Publishers bundles the typed publish functions used by the HTTP layer.
type Publishers struct {
	Created messaging.Publish[MappingCreatedEvent]
	Visited messaging.Publish[MappingVisitedEvent]
}

func NewPublishers(publisher message.Publisher) Publishers {
	return Publishers{
		Created: messaging.NewPublishFunc[MappingCreatedEvent](publisher, TopicMappingCreated),
		Visited: messaging.NewPublishFunc[MappingVisitedEvent](publisher, TopicMappingVisited),
	}
}

// RegisterConsumers adds one consumer per topic to group, each writing to store.
func RegisterConsumers(group *messaging.ConsumerGroup, subscriber message.Subscriber, store Store, logger *zap.Logger) {
	group.Add(messaging.NewConsumer(subscriber, TopicMappingCreated, store.SaveMappingCreated, logger))
	group.Add(messaging.NewConsumer(subscriber, TopicMappingVisited, store.SaveMappingVisited, logger))
}
