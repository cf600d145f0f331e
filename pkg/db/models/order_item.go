package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// OrderItem is one product line of an order, owned by a single supplier (or the platform).
// Commission fields are captured at commit time and never recomputed.
type OrderItem struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	SupplierID        *uuid.UUID              `gorm:"column:supplier_id;type:uuid;index"`
	ProductName       string                  `gorm:"column:product_name;not null"`
	UnitPrice         decimal.Decimal         `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity          int                     `gorm:"column:quantity;not null"`
	TotalPrice        decimal.Decimal         `gorm:"column:total_price;type:numeric(12,2);not null"`
	CommissionRate    decimal.Decimal         `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	CommissionAmount  decimal.Decimal         `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	SupplierAmount    decimal.Decimal         `gorm:"column:supplier_amount;type:numeric(12,2);not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'PENDING'"`
	TrackingNumber    *string                 `gorm:"column:tracking_number"`
	ConfirmedAt       *time.Time              `gorm:"column:confirmed_at"`
	FulfilledAt       *time.Time              `gorm:"column:fulfilled_at"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
