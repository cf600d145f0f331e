package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// CurrentEnvelopeVersion is written by Emit when the caller leaves Version unset.
const CurrentEnvelopeVersion = 1

var (
	ErrEmptyPayload   = errors.New("envelope data is empty")
	ErrInvalidEventID = errors.New("envelope event id is not a uuid")
)

// ActorRef identifies who caused the event. UserID is nil for system actions.
type ActorRef struct {
	UserID     *uuid.UUID      `json:"userId,omitempty"`
	SupplierID *uuid.UUID      `json:"supplierId,omitempty"`
	Role       enums.ActorRole `json:"role,omitempty"`
}

// System reports whether the event was raised without a user.
func (a *ActorRef) System() bool {
	return a == nil || (a.UserID == nil && a.SupplierID == nil)
}

// PayloadEnvelope is the JSON stored in outbox_events.payload_json and
// forwarded as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope with a fresh event id.
func NewEnvelope(version int, occurredAt time.Time, actor *ActorRef, data any) (PayloadEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal event data: %w", err)
	}
	if version <= 0 {
		version = CurrentEnvelopeVersion
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	env := PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Actor:      actor,
		Data:       raw,
	}
	return env, env.Validate()
}

// DecodeEnvelope parses and validates a stored envelope.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, env.Validate()
}

// SchemaVersion treats a missing version as the first schema.
func (e PayloadEnvelope) SchemaVersion() int {
	if e.Version <= 0 {
		return CurrentEnvelopeVersion
	}
	return e.Version
}

// Validate rejects envelopes no consumer could act on.
func (e PayloadEnvelope) Validate() error {
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEmptyPayload
	}
	if e.EventID != "" {
		if _, err := uuid.Parse(e.EventID); err != nil {
			return ErrInvalidEventID
		}
	}
	return nil
}
