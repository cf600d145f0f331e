package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/pagination"
)

// LogRepository persists the append-only notification audit trail.
type LogRepository interface {
	WithTx(tx *gorm.DB) LogRepository
	Create(ctx context.Context, entry *models.NotificationLog) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.NotificationLog, error)
	ListByRecipient(ctx context.Context, recipient string, params pagination.Params) ([]models.NotificationLog, string, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type logRepository struct {
	db *gorm.DB
}

// NewLogRepository returns a notification log repository bound to db.
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) WithTx(tx *gorm.DB) LogRepository {
	if tx == nil {
		return r
	}
	return &logRepository{db: tx}
}

func (r *logRepository) Create(ctx context.Context, entry *models.NotificationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByOrder returns every entry for the order, oldest first.
func (r *logRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.NotificationLog, error) {
	var entries []models.NotificationLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// ListByRecipient pages through entries for one recipient, newest first.
// The returned cursor is empty on the last page.
func (r *logRepository) ListByRecipient(ctx context.Context, recipient string, params pagination.Params) ([]models.NotificationLog, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Model(&models.NotificationLog{}).
		Where("recipient = ?", strings.TrimSpace(recipient))
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var entries []models.NotificationLog
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&entries).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Page(entries, params.Limit, func(e models.NotificationLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, next, nil
}

// DeleteOlderThan prunes entries created before cutoff.
func (r *logRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.NotificationLog{})
	return res.RowsAffected, res.Error
}
