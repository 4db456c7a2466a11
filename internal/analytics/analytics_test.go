package analytics_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/serroba/url-mapping/internal/analytics"
	"github.com/serroba/url-mapping/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// topicSubscriber hands out one channel per topic.
type topicSubscriber struct {
	mu       sync.Mutex
	channels map[string]chan *message.Message
}

func newTopicSubscriber() *topicSubscriber {
	return &topicSubscriber{channels: map[string]chan *message.Message{
		analytics.TopicMappingCreated: make(chan *message.Message, 10),
		analytics.TopicMappingVisited: make(chan *message.Message, 10),
	}}
}

func (s *topicSubscriber) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	ch, ok := s.channels[topic]
	if !ok {
		return nil, errors.New("unknown topic")
	}

	return ch, nil
}

func (s *topicSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, ch := range s.channels {
		close(ch)
		delete(s.channels, topic)
	}

	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
}

func (p *recordingPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.messages == nil {
		p.messages = make(map[string][]*message.Message)
	}

	p.messages[topic] = append(p.messages[topic], msgs...)

	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type mockStore struct {
	mu      sync.Mutex
	created []*analytics.MappingCreatedEvent
	visited []*analytics.MappingVisitedEvent
	err     error
}

func (m *mockStore) SaveMappingCreated(_ context.Context, event *analytics.MappingCreatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.created = append(m.created, event)

	return nil
}

func (m *mockStore) SaveMappingVisited(_ context.Context, event *analytics.MappingVisitedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.visited = append(m.visited, event)

	return nil
}

func TestPublishers(t *testing.T) {
	pub := &recordingPublisher{}
	publishers := analytics.NewPublishers(pub)
	ctx := context.Background()

	require.NoError(t, publishers.Created(ctx, &analytics.MappingCreatedEvent{ShortURL: "NkHF8i", LongURL: "https://example.com/page"}))
	require.NoError(t, publishers.Visited(ctx, &analytics.MappingVisitedEvent{ShortURL: "NkHF8i", Referrer: "https://ref.example.com"}))

	require.Len(t, pub.messages[analytics.TopicMappingCreated], 1)
	require.Len(t, pub.messages[analytics.TopicMappingVisited], 1)

	var created analytics.MappingCreatedEvent
	require.NoError(t, json.Unmarshal(pub.messages[analytics.TopicMappingCreated][0].Payload, &created))
	assert.Equal(t, "https://example.com/page", created.LongURL)

	assert.Contains(t, string(pub.messages[analytics.TopicMappingVisited][0].Payload), `"referrer":"https://ref.example.com"`)
}

func TestRegisterConsumers(t *testing.T) {
	sub := newTopicSubscriber()
	store := &mockStore{}
	group := messaging.NewConsumerGroup(sub, zap.NewNop())

	analytics.RegisterConsumers(group, sub, store, zap.NewNop())
	assert.Equal(t, []string{analytics.TopicMappingCreated, analytics.TopicMappingVisited}, group.Topics())
	require.NoError(t, group.Start(context.Background()))

	createdAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	createdMsg := encode(t, &analytics.MappingCreatedEvent{ShortURL: "S1lkL1", LongURL: "https://a.com", CreatedAt: createdAt})
	visitedMsg := encode(t, &analytics.MappingVisitedEvent{ShortURL: "S1lkL1", ClientIP: "203.0.113.7"})

	sub.channels[analytics.TopicMappingCreated] <- createdMsg
	sub.channels[analytics.TopicMappingVisited] <- visitedMsg

	for _, msg := range []*message.Message{createdMsg, visitedMsg} {
		select {
		case <-msg.Acked():
		case <-msg.Nacked():
			t.Fatal("message was nacked")
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for ack")
		}
	}

	require.NoError(t, group.Shutdown())

	require.Len(t, store.created, 1)
	assert.Equal(t, "https://a.com", store.created[0].LongURL)
	assert.True(t, createdAt.Equal(store.created[0].CreatedAt))

	require.Len(t, store.visited, 1)
	assert.Equal(t, "203.0.113.7", store.visited[0].ClientIP)
}

func TestRegisterConsumers_StoreFailureNacks(t *testing.T) {
	sub := newTopicSubscriber()
	group := messaging.NewConsumerGroup(sub, zap.NewNop())

	analytics.RegisterConsumers(group, sub, &mockStore{err: errors.New("db down")}, zap.NewNop())
	require.NoError(t, group.Start(context.Background()))

	defer func() { _ = group.Shutdown() }()

	msg := encode(t, &analytics.MappingVisitedEvent{ShortURL: "S1lkL1"})
	sub.channels[analytics.TopicMappingVisited] <- msg

	select {
	case <-msg.Nacked():
	case <-msg.Acked():
		t.Fatal("message should have been nacked")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for nack")
	}
}

func encode(t *testing.T, event any) *message.Message {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return message.NewMessage(uuid.NewString(), payload)
}
