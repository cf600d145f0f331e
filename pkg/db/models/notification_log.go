package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// NotificationLog is an append-only record of one notification attempt outcome.
type NotificationLog struct {
	ID        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Channel   enums.NotificationChannel `gorm:"column:channel;type:text;not null"`
	Recipient string                    `gorm:"column:recipient;not null;index"`
	Subject   string                    `gorm:"column:subject;not null"`
	Status    enums.NotificationStatus  `gorm:"column:status;type:text;not null"`
	Error     *string                   `gorm:"column:error"`
	OrderID   *uuid.UUID                `gorm:"column:order_id;type:uuid;index"`
	JobID     *string                   `gorm:"column:job_id"`
	Attempts  int                       `gorm:"column:attempts;not null;default:0"`
	Provider  *string                   `gorm:"column:provider"`
	CreatedAt time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (n *NotificationLog) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
