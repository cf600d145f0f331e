package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// Delivery is one-to-one with Order and stamps each courier transition.
type Delivery struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:deliveries_order_id_key"`
	Status         enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	TrackingNumber string               `gorm:"column:tracking_number;not null;uniqueIndex:deliveries_tracking_number_key"`
	CourierName    *string              `gorm:"column:courier_name"`
	CourierPhone   *string              `gorm:"column:courier_phone"`
	PickedUpAt     *time.Time           `gorm:"column:picked_up_at"`
	InTransitAt    *time.Time           `gorm:"column:in_transit_at"`
	DeliveredAt    *time.Time           `gorm:"column:delivered_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Delivery) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
