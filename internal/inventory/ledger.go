package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

// DecrementInput removes Quantity units of a product.
type DecrementInput struct {
	ProductID     uuid.UUID
	Quantity      int
	Reason        enums.InventoryReason
	ReferenceType enums.InventoryReferenceType
	ReferenceID   *uuid.UUID
}

// AdjustInput applies a signed Change to a product's stock.
type AdjustInput struct {
	ProductID     uuid.UUID
	Change        int
	Reason        enums.InventoryReason
	ReferenceType enums.InventoryReferenceType
	ReferenceID   *uuid.UUID
	Note          *string
}

// Ledger mutates stock and records every mutation in the inventory log.
// Callers supply the transaction; the ledger never commits on its own.
type Ledger struct {
	repo           Repository
	rejectOversell bool
}

func NewLedger(repo Repository, rejectOversell bool) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &Ledger{repo: repo, rejectOversell: rejectOversell}, nil
}

// Decrement locks the product row and subtracts the quantity. When the ledger
// allows oversell the stock may become negative and the log keeps the true delta.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, in DecrementInput) (*models.InventoryLog, error) {
	if in.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if in.Reason == "" {
		in.Reason = enums.InventoryReasonSale
	}
	return l.apply(ctx, tx, AdjustInput{
		ProductID:     in.ProductID,
		Change:        -in.Quantity,
		Reason:        in.Reason,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
	})
}

// Adjust records a manual correction or restock.
func (l *Ledger) Adjust(ctx context.Context, tx *gorm.DB, in AdjustInput) (*models.InventoryLog, error) {
	if in.Change == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "change must not be zero")
	}
	if in.Reason == "" {
		in.Reason = enums.InventoryReasonManual
	}
	if !in.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid inventory reason")
	}
	return l.apply(ctx, tx, in)
}

func (l *Ledger) apply(ctx context.Context, tx *gorm.DB, in AdjustInput) (*models.InventoryLog, error) {
	if in.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	repo := l.repo.WithTx(tx)

	product, err := repo.LockProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	previous := product.Stock
	next := previous + in.Change
	if next < 0 && l.rejectOversell && in.Change < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").WithDetails(map[string]any{
			"productId": product.ID,
			"available": previous,
			"requested": -in.Change,
		})
	}
	if err := repo.UpdateStock(ctx, product.ID, next); err != nil {
		return nil, err
	}

	entry := &models.InventoryLog{
		ProductID:     product.ID,
		ProductName:   product.Name,
		PreviousStock: previous,
		NewStock:      next,
		Change:        in.Change,
		Reason:        in.Reason,
		ReferenceID:   in.ReferenceID,
		Note:          in.Note,
	}
	if in.ReferenceType != "" {
		refType := in.ReferenceType
		entry.ReferenceType = &refType
	}
	if err := repo.CreateLog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
