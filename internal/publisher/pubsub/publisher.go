// Package pubsub publishes batch notices to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// ContentType is set as a message attribute on every publish.
const ContentType = "application/json"

type topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
	Stop()
}

// Publisher marshals payloads to JSON and publishes them to one topic.
type Publisher struct {
	topic  topic
	client *pubsub.Client
	attrs  map[string]string
}

// Open connects to projectID and checks that topicID exists.
func Open(ctx context.Context, projectID, topicID string, attrs map[string]string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p, err := newFromClient(ctx, client, topicID, attrs)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return p, nil
}

func newFromClient(ctx context.Context, client *pubsub.Client, topicID string, attrs map[string]string) (*Publisher, error) {
	t := client.Topic(topicID)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{topic: t, client: client, attrs: attrs}, nil
}

// Publish sends payload as JSON and waits for the server-assigned ID.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	attrs := make(map[string]string, len(p.attrs)+1)
	for k, v := range p.attrs {
		attrs[k] = v
	}
	attrs["content_type"] = ContentType

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client when Open created it.
func (p *Publisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
