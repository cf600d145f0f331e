package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

// DLQFilter narrows a dead-letter listing. Zero values mean no filter.
type DLQFilter struct {
	Reason    enums.OutboxDLQErrorReason
	EventType enums.OutboxEventType
	Page      pagination.Params
}

// DLQRepository stores rows the relay gave up on and lets operators requeue
// them once the cause is fixed.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxDLQErrorLen {
		msg := (*entry.ErrorMessage)[:maxDLQErrorLen]
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns the newest dead-letter entry for eventID, or nil.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("failed_at DESC").
		First(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// List pages through dead-lettered rows, most recent failure first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, string, error) {
	cursor, err := pagination.ParseCursor(filter.Page.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != "" {
		query = query.Where("error_reason = ?", filter.Reason)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if cursor != nil {
		query = query.Where("(failed_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.OutboxDLQ
	if err := query.
		Order("failed_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(filter.Page.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Page(rows, filter.Page.Limit, func(d models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.FailedAt, ID: d.ID}
	})
	return page, next, nil
}

// Replay puts a dead-lettered event back in front of the relay with a fresh
// attempt budget and removes its DLQ entries. The original event id is kept
// so downstream consumers still deduplicate it. Non-retryable rows are
// refused unless force is set, since their payload fails the same way again.
func (r *DLQRepository) Replay(ctx context.Context, eventID uuid.UUID, force bool) (*models.OutboxEvent, error) {
	var replayed models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		err := tx.Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dead-lettered event not found")
		}
		if err != nil {
			return fmt.Errorf("load dlq entry: %w", err)
		}
		if !entry.ErrorReason.Replayable() && !force {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "event is not replayable").
				WithDetails(map[string]any{"reason": entry.ErrorReason})
		}

		res := tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", eventID).
			Updates(map[string]any{"attempt_count": 0, "last_error": nil})
		if res.Error != nil {
			return fmt.Errorf("reset outbox row: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// retention already pruned the parked row
			recreated := models.OutboxEvent{
				ID:            entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
			}
			if err := tx.Create(&recreated).Error; err != nil {
				return fmt.Errorf("recreate outbox row: %w", err)
			}
		}
		if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
			return fmt.Errorf("delete dlq entries: %w", err)
		}
		return tx.Where("id = ?", eventID).First(&replayed).Error
	})
	if err != nil {
		return nil, err
	}
	return &replayed, nil
}
