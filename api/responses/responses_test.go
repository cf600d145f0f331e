package responses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

type envelope struct {
	Data  map[string]any `json:"data"`
	Error struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Details   map[string]any `json:"details"`
		Retryable bool           `json:"retryable"`
		RequestID string         `json:"requestId"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCreated(w, map[string]string{"orderNumber": "ORD-20261017-090000-AB12"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ORD-20261017-090000-AB12", decode(t, w).Data["orderNumber"])
}

func TestWriteErrorKeepsStateConflictDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeStateConflict, "illegal payment transition").
		WithDetails(map[string]any{"from": "PAID", "to": "PENDING"})
	WriteError(t.Context(), nil, w, err)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, "STATE_CONFLICT", body.Error.Code)
	assert.Equal(t, "illegal payment transition", body.Error.Message)
	assert.Equal(t, "PAID", body.Error.Details["from"])
}

func TestWriteErrorHidesInternalMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(t.Context(), nil, w, errors.New("dial tcp 10.0.0.3:5432: refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "10.0.0.3")
}

func TestWriteErrorEchoesRequestIDAndRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "req-42")
	WriteError(t.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "redis unavailable"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.True(t, body.Error.Retryable)

	w = httptest.NewRecorder()
	WriteError(t.Context(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
	assert.False(t, decode(t, w).Error.Retryable)
}
