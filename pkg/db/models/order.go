package models

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// Order is the unit of commitment created by checkout. Orders are never deleted.
type Order struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber    string               `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	CartID         *uuid.UUID           `gorm:"column:cart_id;type:uuid"`
	CustomerID     *uuid.UUID           `gorm:"column:customer_id;type:uuid"`
	PaymentMethod  enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus  enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'PENDING'"`
	DeliveryStatus enums.DeliveryStatus `gorm:"column:delivery_status;type:text;not null;default:'PENDING'"`
	SupplierCount  int                  `gorm:"column:supplier_count;not null;default:1"`

	Subtotal    decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DeliveryFee decimal.Decimal `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	Currency    string          `gorm:"column:currency;type:text;not null;default:'RWF'"`

	CustomerName    string  `gorm:"column:customer_name;not null"`
	CustomerPhone   string  `gorm:"column:customer_phone;not null"`
	CustomerEmail   *string `gorm:"column:customer_email"`
	DeliveryAddress string  `gorm:"column:delivery_address;not null"`
	DeliveryCity    string  `gorm:"column:delivery_city;not null"`
	DeliveryRegion  *string `gorm:"column:delivery_region"`
	DeliveryNotes   *string `gorm:"column:delivery_notes"`
	Notes           *string `gorm:"column:notes"`
	MoMoPhoneNumber *string `gorm:"column:momo_phone_number"`

	ItemsSnapshot   ItemsSnapshot `gorm:"column:items_snapshot;type:jsonb;serializer:json;not null"`
	InvoiceURL      *string       `gorm:"column:invoice_url"`
	DeliveryNoteURL *string       `gorm:"column:delivery_note_url"`

	PaidAt   *time.Time `gorm:"column:paid_at"`
	FailedAt *time.Time `gorm:"column:failed_at"`

	Items    []OrderItem `gorm:"foreignKey:OrderID"`
	Payment  *Payment    `gorm:"foreignKey:OrderID"`
	Delivery *Delivery   `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// TrackingCode is the delivery tracking number, or the order number before a
// delivery row is attached.
func (o *Order) TrackingCode() string {
	if o.Delivery != nil && o.Delivery.TrackingNumber != "" {
		return o.Delivery.TrackingNumber
	}
	return o.OrderNumber
}

// TrackingURL joins the public tracking page base with TrackingCode.
func (o *Order) TrackingURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	return base + "/" + url.PathEscape(o.TrackingCode())
}

// OrderItemSnapshot is the immutable copy of a purchased line captured at commit time.
type OrderItemSnapshot struct {
	ProductID  uuid.UUID       `json:"productId"`
	SupplierID *uuid.UUID      `json:"supplierId,omitempty"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	ImageURL   *string         `json:"image,omitempty"`
}

// ItemsSnapshot is stored as a JSON document on the order row.
type ItemsSnapshot []OrderItemSnapshot
