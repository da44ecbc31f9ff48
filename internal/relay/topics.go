package relay

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// Result is the pending outcome of one publish.
type Result interface {
	Get(ctx context.Context) (serverID string, err error)
}

// Topics publishes to a named topic. A nil Result means the topic has no
// publisher.
type Topics interface {
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) Result
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubTopics caches one Pub/Sub publisher per topic.
type PubSubTopics struct {
	client publisherSource

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func NewPubSubTopics(client publisherSource) (*PubSubTopics, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	return &PubSubTopics{client: client, publishers: make(map[string]*gcppubsub.Publisher)}, nil
}

func (t *PubSubTopics) Publish(ctx context.Context, topic string, msg *gcppubsub.Message) Result {
	pub := t.publisher(topic)
	if pub == nil {
		return nil
	}
	return pub.Publish(ctx, msg)
}

func (t *PubSubTopics) publisher(topic string) *gcppubsub.Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.publishers[topic]; ok {
		return pub
	}
	pub := t.client.Publisher(topic)
	if pub != nil {
		t.publishers[topic] = pub
	}
	return pub
}

// Stop flushes and stops every cached publisher.
func (t *PubSubTopics) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, pub := range t.publishers {
		pub.Stop()
		delete(t.publishers, name)
	}
}
