package enums

import "fmt"

// InventoryReason explains why a product's stock moved.
type InventoryReason string

const (
	InventoryReasonSale         InventoryReason = "SALE"
	InventoryReasonManual       InventoryReason = "MANUAL"
	InventoryReasonRestock      InventoryReason = "RESTOCK"
	InventoryReasonCancellation InventoryReason = "CANCELLATION"
)

var validInventoryReasons = []InventoryReason{
	InventoryReasonSale,
	InventoryReasonManual,
	InventoryReasonRestock,
	InventoryReasonCancellation,
}

// IsValid reports whether the value is a known InventoryReason.
func (r InventoryReason) IsValid() bool {
	for _, candidate := range validInventoryReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseInventoryReason converts raw input into an InventoryReason.
func ParseInventoryReason(value string) (InventoryReason, error) {
	for _, candidate := range validInventoryReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory reason %q", value)
}

// InventoryReferenceType names the entity that caused a stock movement.
type InventoryReferenceType string

const (
	InventoryReferenceOrder InventoryReferenceType = "ORDER"
	InventoryReferenceAdmin InventoryReferenceType = "ADMIN"
)

// IsValid reports whether the value is a known InventoryReferenceType.
func (r InventoryReferenceType) IsValid() bool {
	return r == InventoryReferenceOrder || r == InventoryReferenceAdmin
}
