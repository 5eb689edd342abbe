package subscriptionevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

const defaultPublishTimeout = 10 * time.Second

// Notification tells downstream consumers that a member's access state changed.
type Notification struct {
	UserID         string       `json:"user_id"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
	EventType      string       `json:"event_type"`
	Status         string       `json:"status,omitempty"`
	ActiveMember   *bool        `json:"active_member,omitempty"`
	Source         string       `json:"source,omitempty"`
	OccurredAt     instant.Time `json:"occurred_at"`
}

// Notifier fans out access-change notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NoopNotifier drops notifications.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Notification) error { return nil }

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubNotifier publishes notifications to a Pub/Sub topic and waits for the ack.
type PubSubNotifier struct {
	pub     publisher
	timeout time.Duration
}

// NewPubSubNotifier wraps a Pub/Sub publisher.
func NewPubSubNotifier(p *gcppubsub.Publisher) (*PubSubNotifier, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return &PubSubNotifier{pub: &gcpPublisher{Publisher: p}, timeout: defaultPublishTimeout}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type": note.EventType,
			"user_id":    note.UserID,
		},
	}
	publishCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	result := n.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publish returned no result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
