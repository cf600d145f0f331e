package orders

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/duka-backend/pkg/outbox/payloads"
)

const paymentConsumerName = "order-payments"

type processedTracker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.State, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type paymentSubscription interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// PaymentConsumer applies gateway payment results to orders.
type PaymentConsumer struct {
	orders       Service
	idempotency  processedTracker
	subscription paymentSubscription
	logg         *logger.Logger
}

// NewPaymentConsumer wires the consumer to the payments subscription.
func NewPaymentConsumer(orders Service, guard processedTracker, subscription paymentSubscription, logg *logger.Logger) (*PaymentConsumer, error) {
	if orders == nil {
		return nil, errors.New("orders service is required")
	}
	if guard == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if subscription == nil {
		return nil, errors.New("payments subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &PaymentConsumer{
		orders:       orders,
		idempotency:  guard,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Handle(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Handle applies one payment result and reports whether the message should be acked.
func (c *PaymentConsumer) Handle(ctx context.Context, messageID string, data []byte) bool {
	ctx = c.logg.WithField(ctx, "message_id", messageID)

	var event payloads.PaymentResultEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logg.Error(ctx, "failed to decode payment result", err)
		return true
	}
	if event.EventID == uuid.Nil || event.OrderID == uuid.Nil {
		c.logg.Warn(ctx, "payment result missing identifiers")
		return true
	}
	if event.Status != enums.PaymentStatusPaid && event.Status != enums.PaymentStatusFailed {
		c.logg.Warn(c.logg.WithField(ctx, "status", string(event.Status)), "payment result status not final")
		return true
	}

	ctx = c.logg.WithFields(c.logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
		"event_id": event.EventID.String(),
		"status":   string(event.Status),
		"provider": event.Provider,
	})

	state, err := c.idempotency.Claim(ctx, paymentConsumerName, event.EventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	switch state {
	case idempotency.Done:
		c.logg.Info(ctx, "payment result already processed")
		return true
	case idempotency.InFlight:
		c.logg.Info(ctx, "payment result in flight elsewhere")
		return false
	}

	status := event.Status
	update := StatusUpdate{
		PaymentStatus:    &status,
		ProviderMetadata: event.Metadata,
	}
	if provider := strings.TrimSpace(event.Provider); provider != "" {
		update.Provider = &provider
	}
	if ref := strings.TrimSpace(event.ProviderReference); ref != "" {
		update.ProviderReference = &ref
	}

	_, err = c.orders.UpdateOrderStatus(ctx, Actor{Role: enums.ActorRoleAdmin}, event.OrderID, update)
	switch {
	case err == nil:
		c.complete(ctx, event.EventID)
		c.logg.Info(ctx, "payment result applied")
		return true
	case pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		c.complete(ctx, event.EventID)
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment result rejected")
		return true
	default:
		if delErr := c.idempotency.Release(ctx, paymentConsumerName, event.EventID); delErr != nil {
			c.logg.Error(ctx, "failed to release idempotency key", delErr)
		}
		c.logg.Error(ctx, "failed to apply payment result", err)
		return !pkgerrors.IsRetryable(err)
	}
}

func (c *PaymentConsumer) complete(ctx context.Context, eventID uuid.UUID) {
	if err := c.idempotency.Complete(ctx, paymentConsumerName, eventID); err != nil {
		c.logg.Error(ctx, "failed to mark payment result done", err)
	}
}
