package inventory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the inventory audit trail and manual adjustments to admins.
type Service interface {
	ListLogs(ctx context.Context, filter LogFilter) ([]models.InventoryLog, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.InventoryLog, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	ledger *Ledger
}

func NewService(tx txRunner, repo Repository, ledger *Ledger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &service{tx: tx, repo: repo, ledger: ledger}, nil
}

func (s *service) ListLogs(ctx context.Context, filter LogFilter) ([]models.InventoryLog, error) {
	return s.repo.ListLogs(ctx, filter)
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.InventoryLog, error) {
	if input.ReferenceType == "" {
		input.ReferenceType = enums.InventoryReferenceAdmin
	}
	var entry *models.InventoryLog
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.ledger.Adjust(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
