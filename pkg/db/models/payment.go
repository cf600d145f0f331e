package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/types"
)

// Payment is one-to-one with Order. Provider fields are filled by the payment gateway later.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:payments_order_id_key"`
	Method            enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string              `gorm:"column:currency;type:text;not null"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	PhoneNumber       *string             `gorm:"column:phone_number"`
	Provider          *string             `gorm:"column:provider"`
	ProviderReference *string             `gorm:"column:provider_reference"`
	ProviderMetadata  types.JSONMap       `gorm:"column:provider_metadata;type:jsonb;serializer:json"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	FailedAt          *time.Time          `gorm:"column:failed_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
