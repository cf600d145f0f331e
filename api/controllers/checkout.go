package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/api/middleware"
	"github.com/angelmondragon/duka-backend/api/responses"
	"github.com/angelmondragon/duka-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/duka-backend/internal/checkout"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
)

type checkoutRequest struct {
	CartID          string          `json:"cartId" validate:"required,uuid"`
	Customer        customerRequest `json:"customer"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required"`
	MoMoPhoneNumber *string         `json:"momoPhoneNumber,omitempty" validate:"omitempty,max=20"`
	Notes           *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type customerRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	Phone         string  `json:"phone" validate:"required,max=20"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Address       string  `json:"address" validate:"required,max=500"`
	City          string  `json:"city" validate:"required,max=100"`
	Region        *string `json:"region,omitempty" validate:"omitempty,max=100"`
	DeliveryNotes *string `json:"deliveryNotes,omitempty" validate:"omitempty,max=1000"`
}

// Checkout commits the caller's cart into an order. Guests may check out; an
// authenticated customer is recorded on the order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if actor, ok := middleware.ActorFromContext(r.Context()); ok && actor.Role == enums.ActorRoleCustomer {
			customerID := actor.UserID
			input.CustomerID = &customerID
		}

		order, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newOrderResponse(order))
	}
}

func (p checkoutRequest) toInput() (checkoutsvc.CheckoutInput, error) {
	cartID, err := uuid.Parse(p.CartID)
	if err != nil {
		return checkoutsvc.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart id")
	}
	method, err := enums.ParsePaymentMethod(p.PaymentMethod)
	if err != nil {
		return checkoutsvc.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	return checkoutsvc.CheckoutInput{
		CartID: cartID,
		Customer: checkoutsvc.CustomerInput{
			Name:          validators.SanitizeString(p.Customer.Name, 200),
			Phone:         strings.TrimSpace(p.Customer.Phone),
			Email:         validators.SanitizeOptional(p.Customer.Email, 254),
			Address:       validators.SanitizeString(p.Customer.Address, 500),
			City:          validators.SanitizeString(p.Customer.City, 100),
			Region:        validators.SanitizeOptional(p.Customer.Region, 100),
			DeliveryNotes: validators.SanitizeOptional(p.Customer.DeliveryNotes, 500),
		},
		PaymentMethod:   method,
		MoMoPhoneNumber: validators.SanitizeOptional(p.MoMoPhoneNumber, 20),
		Notes:           validators.SanitizeOptional(p.Notes, 1000),
	}, nil
}
