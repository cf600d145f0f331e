package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/api/responses"
	"github.com/angelmondragon/duka-backend/api/validators"
	"github.com/angelmondragon/duka-backend/internal/inventory"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/pagination"
)

type inventoryAdjustRequest struct {
	ProductID string  `json:"productId" validate:"required,uuid"`
	Change    int     `json:"change" validate:"required"`
	Reason    string  `json:"reason" validate:"required"`
	Note      *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// AdminInventoryLogs lists stock movements, newest first, optionally filtered
// by product or by the order that caused them.
func AdminInventoryLogs(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.MaxLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := inventory.LogFilter{Limit: limit}
		if filter.ProductID, err = validators.ParseQueryUUID(r, "productId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.ReferenceID, err = validators.ParseQueryUUID(r, "referenceId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		logs, err := svc.ListLogs(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]inventoryLogResponse, 0, len(logs))
		for _, l := range logs {
			out = append(out, newInventoryLogResponse(l))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminInventoryAdjust applies a manual stock correction and logs it.
func AdminInventoryAdjust(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		var payload inventoryAdjustRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		reason, err := enums.ParseInventoryReason(strings.ToUpper(strings.TrimSpace(payload.Reason)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid inventory reason"))
			return
		}

		entry, err := svc.Adjust(r.Context(), inventory.AdjustInput{
			ProductID:     productID,
			Change:        payload.Change,
			Reason:        reason,
			ReferenceType: enums.InventoryReferenceAdmin,
			Note:          validators.SanitizeOptional(payload.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, newInventoryLogResponse(*entry))
	}
}
