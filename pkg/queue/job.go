package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// ErrTerminal marks a handler failure that must not be retried.
var ErrTerminal = errors.New("terminal job failure")

// Terminal wraps err so the worker dead-letters the job without further attempts.
func Terminal(err error) error {
	if err == nil {
		return ErrTerminal
	}
	return fmt.Errorf("%w: %w", ErrTerminal, err)
}

// Job is the unit stored on a channel queue. Payload is channel specific.
type Job struct {
	ID          string                    `json:"id"`
	Channel     enums.NotificationChannel `json:"channel"`
	Payload     json.RawMessage           `json:"payload"`
	OrderID     *uuid.UUID                `json:"orderId,omitempty"`
	Attempt     int                       `json:"attempt"`
	MaxAttempts int                       `json:"maxAttempts"`
	EnqueuedAt  time.Time                 `json:"enqueuedAt"`
	LastError   string                    `json:"lastError,omitempty"`
}

// Decode unmarshals the job payload into dst.
func (j *Job) Decode(dst any) error {
	if len(j.Payload) == 0 {
		return Terminal(fmt.Errorf("job %s has empty payload", j.ID))
	}
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return Terminal(fmt.Errorf("decode %s payload: %w", j.Channel, err))
	}
	return nil
}

// Exhausted reports whether the current attempt is the last one allowed.
func (j *Job) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempt >= j.MaxAttempts
}

// Recipient best-effort reads the payload's "to" field. PDF jobs have none.
func (j *Job) Recipient() string {
	var addressed struct {
		To string `json:"to"`
	}
	if err := json.Unmarshal(j.Payload, &addressed); err != nil {
		return ""
	}
	return addressed.To
}

type EmailPayload struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
	OrderID  *uuid.UUID     `json:"orderId,omitempty"`
}

type SMSPayload struct {
	To      string     `json:"to"`
	Message string     `json:"message"`
	OrderID *uuid.UUID `json:"orderId,omitempty"`
}

type WhatsAppPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
	OrderID  *uuid.UUID        `json:"orderId,omitempty"`
}

type PDFPayload struct {
	Type    enums.DocumentType `json:"type"`
	OrderID uuid.UUID          `json:"orderId"`
}
