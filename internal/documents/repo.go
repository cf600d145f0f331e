package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LoadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SetDocumentURL(ctx context.Context, orderID uuid.UUID, docType enums.DocumentType, url string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LoadOrder returns the order with its lines and delivery.
func (r *repository) LoadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Delivery").
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"orderId": orderID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

func (r *repository) SetDocumentURL(ctx context.Context, orderID uuid.UUID, docType enums.DocumentType, url string) error {
	column := "invoice_url"
	if docType == enums.DocumentTypeDeliveryNote {
		column = "delivery_note_url"
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Update(column, url)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "record document url")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"orderId": orderID})
	}
	return nil
}
