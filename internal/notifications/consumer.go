package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stockrun/stockrun-backend/internal/provisioning"
	"github.com/stockrun/stockrun-backend/pkg/logger"
	"github.com/stockrun/stockrun-backend/pkg/redis"
)

const (
	welcomeConsumerScope = "welcome-notifications"
	dedupTTL             = 24 * time.Hour
)

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns user.provisioned events into welcome notifications. The
// transport is at-least-once, so deliveries are deduplicated through redis
// before the feed write.
type Consumer struct {
	notifications Service
	subscription  subscriber
	idempotency   redis.IdempotencyStore
	logg          *logger.Logger
}

// NewConsumer builds the welcome notification consumer.
func NewConsumer(notifications Service, subscription subscriber, idempotency redis.IdempotencyStore, logg *logger.Logger) (*Consumer, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if idempotency == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		notifications: notifications,
		subscription:  subscription,
		idempotency:   idempotency,
		logg:          logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != provisioning.EventTypeUserProvisioned {
		c.logg.Info(logCtx, "skipping unrelated event")
		return processResult{ack: true}
	}

	var event provisioning.DomainEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logg.Error(logCtx, "failed to decode event envelope", err)
		return processResult{ack: true}
	}
	if event.EventID == "" {
		c.logg.Error(logCtx, "event id missing", nil)
		return processResult{ack: true}
	}

	key := c.idempotency.IdempotencyKey(welcomeConsumerScope, event.EventID)
	fresh, err := c.idempotency.SetNX(ctx, key, "1", dedupTTL)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var payload provisioning.UserProvisionedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse event payload", err)
		_ = c.idempotency.Del(ctx, key)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithUserID(logCtx, payload.UserID.String())
	if err := c.notifications.NotifyWelcome(ctx, payload.UserID, payload.Name, payload.Role); err != nil {
		c.logg.Error(logCtx, "welcome notification failed", err)
		_ = c.idempotency.Del(ctx, key)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "welcome notification delivered")
	return processResult{ack: true}
}
