package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/api/responses"
	"github.com/angelmondragon/duka-backend/api/validators"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/pagination"
	"github.com/angelmondragon/duka-backend/pkg/types"
)

// DeadLetters is the operator view of the outbox DLQ.
type DeadLetters interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, string, error)
	Replay(ctx context.Context, eventID uuid.UUID, force bool) (*models.OutboxEvent, error)
}

type deadLetterResponse struct {
	ID            uuid.UUID       `json:"id"`
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	Payload       json.RawMessage `json:"payload"`
	ErrorReason   string          `json:"errorReason"`
	ErrorMessage  *string         `json:"errorMessage,omitempty"`
	AttemptCount  int             `json:"attemptCount"`
	Replayable    bool            `json:"replayable"`
	FailedAt      time.Time       `json:"failedAt"`
}

type replayResponse struct {
	EventID      uuid.UUID `json:"eventId"`
	EventType    string    `json:"eventType"`
	AttemptCount int       `json:"attemptCount"`
}

// AdminOutboxDeadLetters lists events the relay gave up on.
func AdminOutboxDeadLetters(dlq DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox dlq unavailable"))
			return
		}
		q := r.URL.Query()
		filter := outbox.DLQFilter{
			Reason:    enums.OutboxDLQErrorReason(strings.ToLower(strings.TrimSpace(q.Get("reason")))),
			EventType: enums.OutboxEventType(strings.TrimSpace(q.Get("eventType"))),
		}
		if filter.Reason != "" && !filter.Reason.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown reason").
				WithDetails(map[string]any{"field": "reason"}))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Page = pagination.Params{Limit: limit, Cursor: q.Get("cursor")}

		rows, next, err := dlq.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]deadLetterResponse, 0, len(rows))
		for _, row := range rows {
			items = append(items, deadLetterResponse{
				ID:            row.ID,
				EventID:       row.EventID,
				EventType:     string(row.EventType),
				AggregateType: string(row.AggregateType),
				AggregateID:   row.AggregateID,
				Payload:       row.Payload,
				ErrorReason:   string(row.ErrorReason),
				ErrorMessage:  row.ErrorMessage,
				AttemptCount:  row.AttemptCount,
				Replayable:    row.ErrorReason.Replayable(),
				FailedAt:      row.FailedAt,
			})
		}
		responses.WriteSuccess(w, types.Page[deadLetterResponse]{Items: items, NextCursor: next})
	}
}

// AdminOutboxReplay requeues one dead-lettered event. ?force=true also
// requeues non-retryable rows.
func AdminOutboxReplay(dlq DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox dlq unavailable"))
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId", "event id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		force := false
		if raw := strings.TrimSpace(r.URL.Query().Get("force")); raw != "" {
			if force, err = strconv.ParseBool(raw); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "force must be a boolean"))
				return
			}
		}

		event, err := dlq.Replay(r.Context(), eventID, force)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"event_id":   event.ID.String(),
				"event_type": event.EventType,
				"forced":     force,
			}), "outbox event replayed")
		}
		responses.WriteSuccess(w, replayResponse{
			EventID:      event.ID,
			EventType:    string(event.EventType),
			AttemptCount: event.AttemptCount,
		})
	}
}
