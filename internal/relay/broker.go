package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/shopledger-backend/pkg/outbox/registry"
)

// Message is what the relay hands to a broker.
type Message struct {
	Data        []byte
	OrderingKey string
	Attributes  map[string]string
}

// Broker publishes one message and waits for the server ack.
type Broker interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, topic string, msg Message) error
}

type publisherSource interface {
	Ping(ctx context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubBroker keeps one ordered publisher per topic for the process
// lifetime.
type PubSubBroker struct {
	source publisherSource

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func NewPubSubBroker(source publisherSource) (*PubSubBroker, error) {
	if source == nil {
		return nil, errors.New("pubsub client is required")
	}
	return &PubSubBroker{source: source, publishers: map[string]*gcppubsub.Publisher{}}, nil
}

func (b *PubSubBroker) Ping(ctx context.Context) error {
	return b.source.Ping(ctx)
}

func (b *PubSubBroker) publisher(topic string) *gcppubsub.Publisher {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.publishers[topic]; ok {
		return p
	}
	p := b.source.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	b.publishers[topic] = p
	return p
}

// Publish blocks until Pub/Sub acks. A failed ordered publish pauses its
// key, so the key is resumed before returning the error for a later retry.
func (b *PubSubBroker) Publish(ctx context.Context, topic string, msg Message) error {
	p := b.publisher(topic)
	if p == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := p.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		OrderingKey: msg.OrderingKey,
		Attributes:  msg.Attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		if msg.OrderingKey != "" {
			p.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

// Stop flushes and stops every publisher.
func (b *PubSubBroker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, p := range b.publishers {
		p.Stop()
		delete(b.publishers, topic)
	}
}
