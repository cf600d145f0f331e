package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/duka-backend/api/responses"
	"github.com/angelmondragon/duka-backend/api/validators"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/pagination"
	"github.com/angelmondragon/duka-backend/pkg/types"
)

type recipientLogReader interface {
	ListByRecipient(ctx context.Context, recipient string, params pagination.Params) ([]models.NotificationLog, string, error)
}

// AdminNotificationsByRecipient pages through every notification sent to one
// email address or phone number.
func AdminNotificationsByRecipient(logs recipientLogReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logs == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification log unavailable"))
			return
		}
		recipient := strings.TrimSpace(r.URL.Query().Get("recipient"))
		if recipient == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "recipient is required"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, next, err := logs.ListByRecipient(r.Context(), recipient, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.Page[notificationLogResponse]{Items: newNotificationLogResponses(items), NextCursor: next})
	}
}
