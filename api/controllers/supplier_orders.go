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

type fulfillmentRequest struct {
	Status         string  `json:"status" validate:"required"`
	TrackingNumber *string `json:"trackingNumber,omitempty" validate:"omitempty,max=100"`
}

// SupplierItemFulfillment advances one order line. Suppliers may only touch
// their own lines; admins may touch any.
func SupplierItemFulfillment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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
		itemID, err := validators.ParseUUIDParam(r, "itemId", "order item id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload fulfillmentRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseFulfillmentStatus(strings.ToUpper(strings.TrimSpace(payload.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fulfillment status"))
			return
		}

		item, err := svc.UpdateItemFulfillment(r.Context(), serviceActor(actor), itemID, internalorders.FulfillmentUpdate{
			Status:         status,
			TrackingNumber: validators.SanitizeOptional(payload.TrackingNumber, 100),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderItemResponse(item))
	}
}
