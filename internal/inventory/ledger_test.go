package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/duka-backend/pkg/db"
	"github.com/angelmondragon/duka-backend/pkg/db/dbtest"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

func newLedger(t *testing.T, db *gorm.DB, reject bool) *Ledger {
	t.Helper()
	ledger, err := NewLedger(NewRepository(db), reject)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func TestDecrementWritesLog(t *testing.T) {
	t.Parallel()
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, db, nil, "Rice 5kg", "7500", 10)
	orderID := uuid.New()
	ledger := newLedger(t, db, false)

	err := db.Transaction(func(tx *gorm.DB) error {
		entry, err := ledger.Decrement(ctx, tx, DecrementInput{
			ProductID:     product.ID,
			Quantity:      3,
			Reason:        enums.InventoryReasonSale,
			ReferenceType: enums.InventoryReferenceOrder,
			ReferenceID:   &orderID,
		})
		if err != nil {
			return err
		}
		if entry.PreviousStock != 10 || entry.NewStock != 7 || entry.Change != -3 {
			t.Fatalf("unexpected entry: %+v", entry)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}

	var reloaded models.Product
	if err := db.First(&reloaded, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.Stock != 7 {
		t.Fatalf("expected stock 7, got %d", reloaded.Stock)
	}

	logs, err := NewRepository(db).ListLogs(ctx, LogFilter{ReferenceID: &orderID})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].Reason != enums.InventoryReasonSale || logs[0].ReferenceType == nil || *logs[0].ReferenceType != enums.InventoryReferenceOrder {
		t.Fatalf("unexpected log: %+v", logs[0])
	}
	if logs[0].ProductName != "Rice 5kg" {
		t.Fatalf("expected product name captured, got %q", logs[0].ProductName)
	}
}

func TestDecrementAllowsOversellByDefault(t *testing.T) {
	t.Parallel()
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, db, nil, "Soap", "900", 1)
	ledger := newLedger(t, db, false)

	entry, err := ledger.Decrement(ctx, db, DecrementInput{ProductID: product.ID, Quantity: 3})
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if entry.NewStock != -2 || entry.Change != -3 {
		t.Fatalf("expected true delta to be logged, got %+v", entry)
	}
	if entry.NewStock != entry.PreviousStock+entry.Change {
		t.Fatalf("log does not balance: %+v", entry)
	}
}

func TestDecrementRejectsOversellWhenConfigured(t *testing.T) {
	t.Parallel()
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, db, nil, "Soap", "900", 1)
	ledger := newLedger(t, db, true)

	_, err := ledger.Decrement(ctx, db, DecrementInput{ProductID: product.ID, Quantity: 2})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if n := dbtest.Count(t, db, &models.InventoryLog{}); n != 0 {
		t.Fatalf("expected no logs, got %d", n)
	}
	var reloaded models.Product
	if err := db.First(&reloaded, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.Stock != 1 {
		t.Fatalf("stock changed to %d", reloaded.Stock)
	}
}

func TestDecrementValidation(t *testing.T) {
	t.Parallel()
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	ledger := newLedger(t, db, false)

	if _, err := ledger.Decrement(ctx, db, DecrementInput{ProductID: uuid.New(), Quantity: 0}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ledger.Decrement(ctx, db, DecrementInput{ProductID: uuid.New(), Quantity: 1}); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdjustRestock(t *testing.T) {
	t.Parallel()
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, db, nil, "Beans", "1200", 2)
	ledger := newLedger(t, db, true)
	note := "weekly delivery"

	entry, err := ledger.Adjust(ctx, db, AdjustInput{
		ProductID:     product.ID,
		Change:        8,
		Reason:        enums.InventoryReasonRestock,
		ReferenceType: enums.InventoryReferenceAdmin,
		Note:          &note,
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if entry.PreviousStock != 2 || entry.NewStock != 10 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if _, err := ledger.Adjust(ctx, db, AdjustInput{ProductID: product.ID}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero change, got %v", err)
	}
}

func TestListLogsByProduct(t *testing.T) {
	t.Parallel()
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	a := dbtest.MustCreateProduct(t, db, nil, "A", "100", 5)
	b := dbtest.MustCreateProduct(t, db, nil, "B", "100", 5)
	ledger := newLedger(t, db, false)

	for _, id := range []uuid.UUID{a.ID, a.ID, b.ID} {
		if _, err := ledger.Decrement(ctx, db, DecrementInput{ProductID: id, Quantity: 1}); err != nil {
			t.Fatalf("decrement: %v", err)
		}
	}

	logs, err := NewRepository(db).ListLogs(ctx, LogFilter{ProductID: &a.ID})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs for product a, got %d", len(logs))
	}
}

func TestServiceAdjustRunsInTransaction(t *testing.T) {
	t.Parallel()
	db := dbtest.OpenSQLite(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, db, nil, "Milk", "800", 4)
	repo := NewRepository(db)
	ledger := newLedger(t, db, false)
	svc, err := NewService(pkgdb.NewFromConn(db, 0), repo, ledger)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	entry, err := svc.Adjust(ctx, AdjustInput{ProductID: product.ID, Change: -1})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if entry.ReferenceType == nil || *entry.ReferenceType != enums.InventoryReferenceAdmin {
		t.Fatalf("expected admin reference, got %+v", entry.ReferenceType)
	}
	if entry.Reason != enums.InventoryReasonManual {
		t.Fatalf("expected manual reason, got %s", entry.Reason)
	}

	logs, err := svc.ListLogs(ctx, LogFilter{ProductID: &product.ID})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
}
