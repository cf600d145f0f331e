package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	supplierID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.OrderCreatedEvent{
		OrderID:       uuid.New(),
		OrderNumber:   "ORD-20261001-090000-AB12",
		Total:         decimal.RequireFromString("16500"),
		Currency:      "RWF",
		PaymentMethod: enums.PaymentMethodCOD,
		SupplierIDs:   []uuid.UUID{supplierID},
	})

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	if resolved.Descriptor.EventType != enums.EventOrderCreated {
		t.Fatalf("unexpected event type %s", resolved.Descriptor.EventType)
	}
	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if len(payload.SupplierIDs) != 1 || payload.SupplierIDs[0] != supplierID || !payload.Total.Equal(decimal.RequireFromString("16500")) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("order_archived"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"orderNumber":"ORD-1"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryItemEventUsesItemAggregate(t *testing.T) {
	reg := newTestEventRegistry(t)
	tracking := "TRK-1234567890"

	event := models.OutboxEvent{
		EventType:     enums.EventOrderItemFulfillmentChanged,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   uuid.New(),
		Payload: mustEnvelope(t, mustMarshal(t, payloads.OrderItemFulfillmentChangedEvent{
			OrderID:        uuid.New(),
			OrderItemID:    uuid.New(),
			From:           enums.FulfillmentStatusConfirmed,
			To:             enums.FulfillmentStatusShipped,
			TrackingNumber: &tracking,
		})),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := resolved.Payload.(*payloads.OrderItemFulfillmentChangedEvent)
	if payload.To != enums.FulfillmentStatusShipped || payload.TrackingNumber == nil || *payload.TrackingNumber != tracking {
		t.Fatalf("payload mismatch %+v", payload)
	}
}

func TestNewEventRegistryRequiresOrdersTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		OrdersTopic:          "orders-topic",
		PaymentsSubscription: "payments-sub",
	}
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func TestEventRegistryResolvesRegisteredSchemaVersions(t *testing.T) {
	reg := newTestEventRegistry(t)
	type documentReadyV2 struct {
		OrderID uuid.UUID `json:"orderId"`
		URLs    []string  `json:"urls"`
	}
	if err := reg.RegisterVersion(enums.EventOrderDocumentReady, 2, JSONDecoder[documentReadyV2]()); err != nil {
		t.Fatalf("register v2: %v", err)
	}
	if err := reg.RegisterVersion("order_refunded", 2, JSONDecoder[documentReadyV2]()); err == nil {
		t.Fatal("expected unknown event type error")
	}

	envelope := mustMarshal(t, outbox.PayloadEnvelope{
		Version:    2,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       mustMarshal(t, documentReadyV2{OrderID: uuid.New(), URLs: []string{"gs://docs/a.pdf"}}),
	})
	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderDocumentReady,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	})
	if err != nil {
		t.Fatalf("resolve v2: %v", err)
	}
	if _, ok := resolved.Payload.(*documentReadyV2); !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}

	envelope = mustMarshal(t, outbox.PayloadEnvelope{Version: 9, EventID: uuid.NewString(), Data: json.RawMessage(`{}`)})
	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderDocumentReady,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	})
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("unknown schema version should be non-retryable, got %v", err)
	}
}
