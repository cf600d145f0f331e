package helpers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

func cartItem(supplierID *uuid.UUID, price string, qty int) models.CartItem {
	productID := uuid.New()
	return models.CartItem{
		ID:        uuid.New(),
		ProductID: productID,
		Product: &models.Product{
			ID:         productID,
			SupplierID: supplierID,
			Name:       "Item " + price,
			Price:      decimal.RequireFromString(price),
			IsActive:   true,
		},
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func TestGroupCartItemsBySupplier(t *testing.T) {
	t.Parallel()
	supplierA := uuid.New()
	supplierB := uuid.New()
	items := []models.CartItem{
		cartItem(&supplierA, "100", 1),
		cartItem(&supplierB, "200", 1),
		cartItem(&supplierA, "300", 1),
		cartItem(nil, "50", 1),
	}

	grouped := GroupCartItemsBySupplier(items)
	if len(grouped) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(grouped))
	}
	if len(grouped[supplierA]) != 2 {
		t.Fatalf("expected 2 items for supplierA, got %d", len(grouped[supplierA]))
	}
	if len(grouped[uuid.Nil]) != 1 {
		t.Fatalf("expected platform group, got %d", len(grouped[uuid.Nil]))
	}
}

func TestSupplierSubtotals(t *testing.T) {
	t.Parallel()
	supplierA := uuid.New()
	items := []models.CartItem{
		cartItem(&supplierA, "100", 2),
		cartItem(nil, "50", 1),
		cartItem(&supplierA, "300", 1),
	}

	got := SupplierSubtotals(items)
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
	if got[0].SupplierID != uuid.Nil || got[0].Lines != 1 || !got[0].Subtotal.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected platform group %+v", got[0])
	}
	if got[1].SupplierID != supplierA || got[1].Lines != 2 || !got[1].Subtotal.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("unexpected supplier group %+v", got[1])
	}
}

func TestSupplierCount(t *testing.T) {
	t.Parallel()
	supplierA := uuid.New()
	supplierB := uuid.New()

	cases := []struct {
		name  string
		items []models.CartItem
		want  int
	}{
		{"two suppliers", []models.CartItem{cartItem(&supplierA, "1", 1), cartItem(&supplierB, "1", 1)}, 2},
		{"repeated supplier", []models.CartItem{cartItem(&supplierA, "1", 1), cartItem(&supplierA, "1", 2)}, 1},
		{"platform only", []models.CartItem{cartItem(nil, "1", 1)}, 1},
		{"platform and supplier", []models.CartItem{cartItem(nil, "1", 1), cartItem(&supplierB, "1", 1)}, 1},
	}
	for _, tc := range cases {
		if got := SupplierCount(tc.items); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestSubtotalUsesCartPriceSnapshot(t *testing.T) {
	t.Parallel()
	item := cartItem(nil, "4500.50", 2)
	item.Product.Price = decimal.RequireFromString("9999")

	got := Subtotal([]models.CartItem{item, cartItem(nil, "99.99", 1)})
	if !got.Equal(decimal.RequireFromString("9100.99")) {
		t.Fatalf("unexpected subtotal %s", got)
	}
}

func TestSortByProductIDIsStable(t *testing.T) {
	t.Parallel()
	items := []models.CartItem{cartItem(nil, "1", 1), cartItem(nil, "2", 1), cartItem(nil, "3", 1)}
	first := SortByProductID(items)
	second := SortByProductID([]models.CartItem{items[2], items[0], items[1]})
	for i := range first {
		if first[i].ProductID != second[i].ProductID {
			t.Fatalf("sort order differs at %d", i)
		}
	}
}

func TestBuildItemsSnapshot(t *testing.T) {
	t.Parallel()
	supplier := uuid.New()
	image := "https://cdn.duka.test/rice.jpg"
	item := cartItem(&supplier, "7500", 2)
	item.Product.ImageURL = &image

	snapshot := BuildItemsSnapshot([]models.CartItem{item})
	if len(snapshot) != 1 {
		t.Fatalf("expected one entry, got %d", len(snapshot))
	}
	entry := snapshot[0]
	if entry.Name != item.Product.Name || entry.Quantity != 2 || !entry.Price.Equal(item.UnitPrice) {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ImageURL == nil || *entry.ImageURL != image {
		t.Fatalf("expected image copied")
	}
	if entry.SupplierID == nil || *entry.SupplierID != supplier {
		t.Fatalf("expected supplier copied")
	}
}

func TestValidatePaymentMethod(t *testing.T) {
	t.Parallel()
	phone := "0788123456"
	blank := "  "

	if err := ValidatePaymentMethod(enums.PaymentMethodCOD, nil); err != nil {
		t.Fatalf("COD without phone should pass: %v", err)
	}
	if err := ValidatePaymentMethod(enums.PaymentMethodMoMo, &phone); err != nil {
		t.Fatalf("MOMO with phone should pass: %v", err)
	}
	for _, p := range []*string{nil, &blank} {
		err := ValidatePaymentMethod(enums.PaymentMethodMoMo, p)
		if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
	if err := ValidatePaymentMethod(enums.PaymentMethod("CARD"), nil); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown method, got %v", err)
	}
}

func TestValidateCart(t *testing.T) {
	t.Parallel()
	if err := ValidateCart(nil); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := ValidateCart(&models.Cart{}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty cart, got %v", err)
	}

	missing := cartItem(nil, "10", 1)
	missing.Product = nil
	if err := ValidateCart(&models.Cart{Items: []models.CartItem{missing}}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing product, got %v", err)
	}

	inactive := cartItem(nil, "10", 1)
	inactive.Product.IsActive = false
	if err := ValidateCart(&models.Cart{Items: []models.CartItem{inactive}}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for inactive product, got %v", err)
	}

	if err := ValidateCart(&models.Cart{Items: []models.CartItem{cartItem(nil, "10", 1)}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
