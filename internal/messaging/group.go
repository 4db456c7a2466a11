package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ErrGroupStarted is returned when Start is called on a running group.
var ErrGroupStarted = errors.New("consumer group already started")

// Runnable is a topic-bound worker with a start/stop lifecycle.
type Runnable interface {
	Topic() string
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup runs the consumers that share one subscriber. Only the
// consumers that actually started are stopped, newest first, and the
// subscriber is closed last.
type ConsumerGroup struct {
	mu         sync.Mutex
	consumers  []Runnable
	running    []Runnable
	subscriber message.Subscriber
	logger     *zap.Logger
}

func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

func (g *ConsumerGroup) Add(consumer Runnable) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consumers = append(g.consumers, consumer)
}

// Topics lists the topics of the registered consumers in order.
func (g *ConsumerGroup) Topics() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.topicsOf(g.consumers)
}

// Start subscribes every consumer. When one fails, the ones already
// running are stopped again and the group can be started anew.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.running) > 0 {
		return ErrGroupStarted
	}

	for _, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			g.stopRunning()

			return fmt.Errorf("start consumer for %s: %w", consumer.Topic(), err)
		}

		g.running = append(g.running, consumer)
	}

	g.logger.Info("consumer group started", zap.Strings("topics", g.topicsOf(g.running)))

	return nil
}

// Shutdown stops the running consumers, then closes the subscriber. All
// errors are returned joined.
func (g *ConsumerGroup) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down consumer group", zap.Strings("topics", g.topicsOf(g.running)))

	errs := g.stopRunning()

	if err := g.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}

	return errors.Join(errs...)
}

// stopRunning must be called with mu held.
func (g *ConsumerGroup) stopRunning() []error {
	var errs []error

	for i := len(g.running) - 1; i >= 0; i-- {
		if err := g.running[i].Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("stop consumer for %s: %w", g.running[i].Topic(), err))
		}
	}

	g.running = nil

	return errs
}

func (g *ConsumerGroup) topicsOf(consumers []Runnable) []string {
	topics := make([]string, 0, len(consumers))
	for _, c := range consumers {
		topics = append(topics, c.Topic())
	}

	return topics
}
