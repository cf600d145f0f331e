package helpers

import (
	"strings"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

// ValidatePaymentMethod rejects unknown methods and MoMo without a wallet number.
func ValidatePaymentMethod(method enums.PaymentMethod, momoPhone *string) error {
	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"paymentMethod": method})
	}
	if method == enums.PaymentMethodMoMo && (momoPhone == nil || strings.TrimSpace(*momoPhone) == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "momoPhoneNumber is required for MOMO payments")
	}
	return nil
}

// ValidateCart confirms the cart is still eligible for checkout. Products must
// be preloaded on the items.
func ValidateCart(cart *models.Cart) error {
	if cart == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if len(cart.Items) == 0 {
		return cartInvalid("cart contains no items", nil)
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return cartInvalid("cart item quantity must be positive", map[string]any{"cartItemId": item.ID})
		}
		if item.Product == nil {
			return cartInvalid("product no longer exists", map[string]any{"productId": item.ProductID})
		}
		if !item.Product.IsActive {
			return cartInvalid("product is no longer available", map[string]any{"productId": item.ProductID})
		}
	}
	return nil
}

func cartInvalid(reason string, details map[string]any) error {
	err := pkgerrors.New(pkgerrors.CodeValidation, "cart invalid: "+reason)
	if details != nil {
		return err.WithDetails(details)
	}
	return err
}
