package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

const defaultLogLimit = 100

// LogFilter narrows inventory log queries. Zero values are ignored.
type LogFilter struct {
	ProductID   *uuid.UUID
	ReferenceID *uuid.UUID
	Limit       int
}

// Repository persists stock levels and the append-only inventory log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	UpdateStock(ctx context.Context, productID uuid.UUID, stock int) error
	CreateLog(ctx context.Context, entry *models.InventoryLog) error
	ListLogs(ctx context.Context, filter LogFilter) ([]models.InventoryLog, error)
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

// LockProduct reads the product row with SELECT ... FOR UPDATE so concurrent
// checkouts serialize on it until the surrounding transaction ends.
func (r *repository) LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("product", productID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
	}
	return &product, nil
}

func (r *repository) UpdateStock(ctx context.Context, productID uuid.UUID, stock int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", stock)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update product stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.NotFound("product", productID)
	}
	return nil
}

func (r *repository) CreateLog(ctx context.Context, entry *models.InventoryLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create inventory log")
	}
	return nil
}

func (r *repository) ListLogs(ctx context.Context, filter LogFilter) ([]models.InventoryLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultLogLimit
	}
	query := r.db.WithContext(ctx).Model(&models.InventoryLog{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	var logs []models.InventoryLog
	if err := query.Order("created_at DESC").Order("id").Limit(limit).Find(&logs).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory logs")
	}
	return logs, nil
}
