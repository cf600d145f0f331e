package helpers

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
)

// GroupCartItemsBySupplier groups cart items by the supplier of their product.
// Platform-owned products are grouped under uuid.Nil.
func GroupCartItemsBySupplier(items []models.CartItem) map[uuid.UUID][]models.CartItem {
	grouped := make(map[uuid.UUID][]models.CartItem, len(items))
	for _, item := range items {
		key := uuid.Nil
		if id := supplierOf(item); id != nil {
			key = *id
		}
		grouped[key] = append(grouped[key], item)
	}
	return grouped
}

// SupplierSubtotal is one supplier's share of a cart. SupplierID is uuid.Nil
// for platform-owned products.
type SupplierSubtotal struct {
	SupplierID uuid.UUID
	Lines      int
	Subtotal   decimal.Decimal
}

// SupplierSubtotals sums each supplier group, ordered by supplier id with the
// platform group first.
func SupplierSubtotals(items []models.CartItem) []SupplierSubtotal {
	grouped := GroupCartItemsBySupplier(items)
	out := make([]SupplierSubtotal, 0, len(grouped))
	for id, lines := range grouped {
		out = append(out, SupplierSubtotal{SupplierID: id, Lines: len(lines), Subtotal: Subtotal(lines)})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].SupplierID[:], out[j].SupplierID[:]) < 0
	})
	return out
}

// DistinctSupplierIDs returns the non-null supplier ids referenced by items, sorted.
func DistinctSupplierIDs(items []models.CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		id := supplierOf(item)
		if id == nil {
			continue
		}
		if _, ok := seen[*id]; ok {
			continue
		}
		seen[*id] = struct{}{}
		ids = append(ids, *id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// SupplierCount is the number of distinct suppliers, never less than one.
func SupplierCount(items []models.CartItem) int {
	if n := len(DistinctSupplierIDs(items)); n > 0 {
		return n
	}
	return 1
}

// Subtotal sums the cart price snapshot of every line.
func Subtotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// SortByProductID orders items so row locks are always taken in the same order.
func SortByProductID(items []models.CartItem) []models.CartItem {
	sorted := append([]models.CartItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ProductID[:], sorted[j].ProductID[:]) < 0
	})
	return sorted
}

// BuildItemsSnapshot copies name, price, quantity and image of each line.
func BuildItemsSnapshot(items []models.CartItem) models.ItemsSnapshot {
	snapshot := make(models.ItemsSnapshot, 0, len(items))
	for _, item := range items {
		entry := models.OrderItemSnapshot{
			ProductID: item.ProductID,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
		}
		if item.Product != nil {
			entry.SupplierID = item.Product.SupplierID
			entry.Name = item.Product.Name
			entry.ImageURL = item.Product.ImageURL
		}
		snapshot = append(snapshot, entry)
	}
	return snapshot
}

func supplierOf(item models.CartItem) *uuid.UUID {
	if item.Product == nil {
		return nil
	}
	return item.Product.SupplierID
}
