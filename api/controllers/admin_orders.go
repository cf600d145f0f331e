package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/duka-backend/api/middleware"
	"github.com/angelmondragon/duka-backend/api/responses"
	"github.com/angelmondragon/duka-backend/api/validators"
	internalorders "github.com/angelmondragon/duka-backend/internal/orders"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
)

type orderStatusRequest struct {
	PaymentStatus     *string        `json:"paymentStatus,omitempty"`
	DeliveryStatus    *string        `json:"deliveryStatus,omitempty"`
	CourierName       *string        `json:"courierName,omitempty" validate:"omitempty,max=200"`
	CourierPhone      *string        `json:"courierPhone,omitempty" validate:"omitempty,max=20"`
	Provider          *string        `json:"provider,omitempty" validate:"omitempty,max=100"`
	ProviderReference *string        `json:"providerReference,omitempty" validate:"omitempty,max=200"`
	ProviderMetadata  map[string]any `json:"providerMetadata,omitempty"`
}

// AdminOrderDetail returns one order with items, payment and delivery.
func AdminOrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminUpdateOrderStatus moves the payment and/or delivery status of an order.
// Illegal transitions surface as STATE_CONFLICT.
func AdminUpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload orderStatusRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		update, err := payload.toUpdate()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID.String())
		order, err := svc.UpdateOrderStatus(ctx, serviceActor(actor), orderID, update)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminOrderNotifications lists every notification attempt recorded for an order.
func AdminOrderNotifications(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logs, err := svc.ListNotificationLogs(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newNotificationLogResponses(logs))
	}
}

func (p orderStatusRequest) toUpdate() (internalorders.StatusUpdate, error) {
	update := internalorders.StatusUpdate{
		CourierName:       validators.SanitizeOptional(p.CourierName, 200),
		CourierPhone:      validators.SanitizeOptional(p.CourierPhone, 20),
		Provider:          validators.SanitizeOptional(p.Provider, 100),
		ProviderReference: validators.SanitizeOptional(p.ProviderReference, 200),
		ProviderMetadata:  p.ProviderMetadata,
	}
	if p.PaymentStatus != nil {
		status, err := enums.ParsePaymentStatus(strings.ToUpper(strings.TrimSpace(*p.PaymentStatus)))
		if err != nil {
			return update, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status")
		}
		update.PaymentStatus = &status
	}
	if p.DeliveryStatus != nil {
		status, err := enums.ParseDeliveryStatus(strings.ToUpper(strings.TrimSpace(*p.DeliveryStatus)))
		if err != nil {
			return update, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery status")
		}
		update.DeliveryStatus = &status
	}
	return update, nil
}

func serviceActor(actor middleware.Actor) internalorders.Actor {
	userID := actor.UserID
	return internalorders.Actor{
		UserID:     &userID,
		SupplierID: actor.SupplierID,
		Role:       actor.Role,
	}
}
