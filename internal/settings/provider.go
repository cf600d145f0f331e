// Package settings resolves operator-editable values stored in the settings table.
package settings

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

const (
	KeyDeliveryDefaultFee    = "delivery.default_fee"
	KeyDeliveryFreeThreshold = "delivery.free_threshold"
)

// DeliveryPricing holds the inputs of the delivery fee rule.
type DeliveryPricing struct {
	DefaultFee    decimal.Decimal
	FreeThreshold decimal.Decimal
}

// FeeFor returns zero once subtotal reaches the free threshold, the default fee otherwise.
func (p DeliveryPricing) FeeFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.DefaultFee
}

// Provider reads settings rows, falling back to configured defaults for
// missing or malformed values.
type Provider interface {
	WithTx(tx *gorm.DB) Provider
	DeliveryPricing(ctx context.Context) (DeliveryPricing, error)
}

type provider struct {
	db       *gorm.DB
	defaults DeliveryPricing
}

func NewProvider(db *gorm.DB, defaults DeliveryPricing) Provider {
	return &provider{db: db, defaults: defaults}
}

func (p *provider) WithTx(tx *gorm.DB) Provider {
	if tx == nil {
		return p
	}
	return &provider{db: tx, defaults: p.defaults}
}

func (p *provider) DeliveryPricing(ctx context.Context) (DeliveryPricing, error) {
	var rows []models.Setting
	err := p.db.WithContext(ctx).
		Where(`"key" IN ?`, []string{KeyDeliveryDefaultFee, KeyDeliveryFreeThreshold}).
		Find(&rows).Error
	if err != nil {
		return DeliveryPricing{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivery settings")
	}

	pricing := p.defaults
	for _, row := range rows {
		value, err := decimal.NewFromString(row.Value)
		if err != nil || value.IsNegative() {
			continue
		}
		switch row.Key {
		case KeyDeliveryDefaultFee:
			pricing.DefaultFee = value
		case KeyDeliveryFreeThreshold:
			pricing.FreeThreshold = value
		}
	}
	return pricing, nil
}

// Set upserts a single setting.
func Set(ctx context.Context, db *gorm.DB, key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key required")
	}
	return db.WithContext(ctx).Save(&models.Setting{Key: key, Value: value}).Error
}
