package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stockrun/stockrun-backend/pkg/enums"
)

// EventTypeUserProvisioned marks a successful provisioning run on the domain stream.
const EventTypeUserProvisioned = "user.provisioned"

// DomainEvent is the envelope published on the domain topic.
type DomainEvent struct {
	EventID    string          `json:"eventId"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// UserProvisionedPayload is the data carried by a user.provisioned event.
type UserProvisionedPayload struct {
	UserID uuid.UUID  `json:"userId"`
	Name   string     `json:"name"`
	Role   enums.Role `json:"role"`
}

// Publisher pushes domain events onto the event stream.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// NewUserProvisionedEvent builds the envelope for a freshly provisioned principal.
func NewUserProvisionedEvent(now time.Time, payload UserProvisionedPayload) (DomainEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("encoding event payload: %w", err)
	}
	return DomainEvent{
		EventID:    uuid.NewString(),
		Type:       EventTypeUserProvisioned,
		OccurredAt: now.UTC(),
		Data:       data,
	}, nil
}

// PubSubPublisher adapts a Pub/Sub publisher handle to the Publisher interface.
type PubSubPublisher struct {
	publisher *pubsub.Publisher
}

// NewPubSubPublisher wraps the domain topic publisher.
func NewPubSubPublisher(publisher *pubsub.Publisher) (*PubSubPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &PubSubPublisher{publisher: publisher}, nil
}

// Publish sends the event and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event DomainEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding domain event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": event.Type,
			"event_id":   event.EventID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing domain event: %w", err)
	}
	return nil
}
