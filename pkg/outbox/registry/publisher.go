package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate and topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor and the
// payload decoders of every schema version still in flight.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	decoders *DecoderRegistry
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		decoders: NewDecoderRegistry(),
	}
	ordersTopic := cfg.OrdersTopic

	reg.register(EventDescriptor{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, Topic: ordersTopic},
		JSONDecoder[payloads.OrderCreatedEvent]())
	reg.register(EventDescriptor{EventType: enums.EventOrderPaymentStatusChanged, AggregateType: enums.AggregateOrder, Topic: ordersTopic},
		JSONDecoder[payloads.OrderPaymentStatusChangedEvent]())
	reg.register(EventDescriptor{EventType: enums.EventOrderDeliveryStatusChanged, AggregateType: enums.AggregateOrder, Topic: ordersTopic},
		JSONDecoder[payloads.OrderDeliveryStatusChangedEvent]())
	reg.register(EventDescriptor{EventType: enums.EventOrderDocumentReady, AggregateType: enums.AggregateOrder, Topic: ordersTopic},
		JSONDecoder[payloads.OrderDocumentReadyEvent]())
	reg.register(EventDescriptor{EventType: enums.EventOrderItemFulfillmentChanged, AggregateType: enums.AggregateOrderItem, Topic: ordersTopic},
		JSONDecoder[payloads.OrderItemFulfillmentChangedEvent]())

	return reg, nil
}

// register adds desc with its v1 decoder.
func (r *EventRegistry) register(desc EventDescriptor, v1 Decoder) {
	r.entries[desc.EventType] = desc
	r.decoders.Register(desc.EventType, 1, v1)
}

// RegisterVersion adds a decoder for a later schema version of a known event.
func (r *EventRegistry) RegisterVersion(eventType enums.OutboxEventType, version int, decoder Decoder) error {
	if _, ok := r.entries[eventType]; !ok {
		return fmt.Errorf("unknown event type %s", eventType)
	}
	r.decoders.Register(eventType, version, decoder)
	return nil
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if errors.Is(err, outbox.ErrEmptyPayload) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}
	if err != nil {
		return nil, NewNonRetryableError(err)
	}

	version := envelope.SchemaVersion()
	payload, err := r.decoders.Decode(event.EventType, version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
