package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

// Repository covers the order aggregate after checkout has created it.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LockOrderItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdatePayment(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdateDelivery(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdateOrderItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOrder loads the order with items, payment and delivery.
func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Payment").
		Preload("Delivery").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order", orderID)
	}
	return &order, nil
}

// LockOrder reads the order row FOR UPDATE, then its payment and delivery.
func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, notFoundOr(err, "order not found", "lock order", orderID)
	}

	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, notFoundOr(err, "payment not found", "load payment", orderID)
	}
	var delivery models.Delivery
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&delivery).Error; err != nil {
		return nil, notFoundOr(err, "delivery not found", "load delivery", orderID)
	}
	order.Payment = &payment
	order.Delivery = &delivery
	return &order, nil
}

func (r *repository) LockOrderItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", itemID).
		First(&item).Error
	if err != nil {
		return nil, notFoundOr(err, "order item not found", "lock order item", itemID)
	}
	return &item, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.update(ctx, &models.Order{}, "id = ?", orderID, updates)
}

func (r *repository) UpdatePayment(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.update(ctx, &models.Payment{}, "order_id = ?", orderID, updates)
}

func (r *repository) UpdateDelivery(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.update(ctx, &models.Delivery{}, "order_id = ?", orderID, updates)
}

func (r *repository) UpdateOrderItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error {
	return r.update(ctx, &models.OrderItem{}, "id = ?", itemID, updates)
}

func (r *repository) update(ctx context.Context, model any, where string, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(model).Where(where, id).Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order state")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "row not found").WithDetails(map[string]any{"id": id})
	}
	return nil
}

func notFoundOr(err error, notFound, op string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound).WithDetails(map[string]any{"id": id})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
