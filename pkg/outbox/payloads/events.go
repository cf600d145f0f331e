package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout commits an order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	Total         decimal.Decimal     `json:"total"`
	Currency      string              `json:"currency"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	SupplierIDs   []uuid.UUID         `json:"supplierIds"`
	Suppliers     []SupplierShare     `json:"suppliers"`
}

// SupplierShare is one supplier's part of a new order. SupplierID is omitted
// for platform stock.
type SupplierShare struct {
	SupplierID *uuid.UUID      `json:"supplierId,omitempty"`
	Lines      int             `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// OrderPaymentStatusChangedEvent is emitted for every effective payment transition.
type OrderPaymentStatusChangedEvent struct {
	OrderID     uuid.UUID           `json:"orderId"`
	OrderNumber string              `json:"orderNumber"`
	From        enums.PaymentStatus `json:"from"`
	To          enums.PaymentStatus `json:"to"`
}

// OrderDeliveryStatusChangedEvent is emitted for every effective delivery transition.
type OrderDeliveryStatusChangedEvent struct {
	OrderID        uuid.UUID            `json:"orderId"`
	OrderNumber    string               `json:"orderNumber"`
	From           enums.DeliveryStatus `json:"from"`
	To             enums.DeliveryStatus `json:"to"`
	TrackingNumber string               `json:"trackingNumber"`
}

// OrderItemFulfillmentChangedEvent reports a supplier moving one of its lines.
type OrderItemFulfillmentChangedEvent struct {
	OrderID        uuid.UUID               `json:"orderId"`
	OrderItemID    uuid.UUID               `json:"orderItemId"`
	SupplierID     *uuid.UUID              `json:"supplierId,omitempty"`
	From           enums.FulfillmentStatus `json:"from"`
	To             enums.FulfillmentStatus `json:"to"`
	TrackingNumber *string                 `json:"trackingNumber,omitempty"`
}

// OrderDocumentReadyEvent announces an uploaded invoice or delivery note.
type OrderDocumentReadyEvent struct {
	OrderID uuid.UUID          `json:"orderId"`
	Type    enums.DocumentType `json:"type"`
	URL     string             `json:"url"`
}

// PaymentResultEvent is published by the payment gateway on the payments subscription.
type PaymentResultEvent struct {
	EventID           uuid.UUID           `json:"eventId"`
	OrderID           uuid.UUID           `json:"orderId"`
	Status            enums.PaymentStatus `json:"status"`
	Provider          string              `json:"provider"`
	ProviderReference string              `json:"providerReference"`
	Metadata          map[string]any      `json:"metadata,omitempty"`
	OccurredAt        time.Time           `json:"occurredAt"`
}
