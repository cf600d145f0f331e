package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod is the method a customer selects at checkout.
type PaymentMethod string

const (
	PaymentMethodMoMo PaymentMethod = "MOMO"
	PaymentMethodCOD  PaymentMethod = "COD"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodMoMo,
	PaymentMethodCOD,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Matching is case-insensitive.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
