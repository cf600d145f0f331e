package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// InventoryLog is an append-only record of one stock mutation.
type InventoryLog struct {
	ID            uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID                     `gorm:"column:product_id;type:uuid;not null;index"`
	ProductName   string                        `gorm:"column:product_name;not null"`
	PreviousStock int                           `gorm:"column:previous_stock;not null"`
	NewStock      int                           `gorm:"column:new_stock;not null"`
	Change        int                           `gorm:"column:change;not null"`
	Reason        enums.InventoryReason         `gorm:"column:reason;type:text;not null"`
	ReferenceType *enums.InventoryReferenceType `gorm:"column:reference_type;type:text"`
	ReferenceID   *uuid.UUID                    `gorm:"column:reference_id;type:uuid;index"`
	Note          *string                       `gorm:"column:note"`
	CreatedAt     time.Time                     `gorm:"column:created_at;autoCreateTime"`
}

func (l *InventoryLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
