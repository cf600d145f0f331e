package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/db/dbtest"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
)

func TestNewEnvelopeDefaults(t *testing.T) {
	env, err := NewEnvelope(0, time.Time{}, nil, map[string]string{"orderNumber": "ORD-1"})
	require.NoError(t, err)

	assert.Equal(t, CurrentEnvelopeVersion, env.Version)
	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
	assert.False(t, env.OccurredAt.IsZero())
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.JSONEq(t, `{"orderNumber":"ORD-1"}`, string(env.Data))
}

func TestNewEnvelopeRejectsNilData(t *testing.T) {
	_, err := NewEnvelope(1, time.Now(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"eventId":"` + uuid.NewString() + `","data":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.SchemaVersion())

	_, err = DecodeEnvelope([]byte(`{"eventId":"evt-1","data":{"a":1}}`))
	assert.ErrorIs(t, err, ErrInvalidEventID)

	_, err = DecodeEnvelope([]byte(`{"version":2,"data":null}`))
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodeEnvelope([]byte(`{`))
	assert.Error(t, err)
}

func TestActorRefSystem(t *testing.T) {
	var nilActor *ActorRef
	assert.True(t, nilActor.System())
	assert.True(t, (&ActorRef{Role: enums.ActorRoleAdmin}).System())
	id := uuid.New()
	assert.False(t, (&ActorRef{UserID: &id}).System())
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	svc := NewService(NewRepository(db), nil)
	aggregateID := uuid.New()
	occurred := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggregateID,
			Data:          map[string]string{"orderNumber": "ORD-7"},
			OccurredAt:    occurred,
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", aggregateID).First(&row).Error)
	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	assert.Equal(t, 1, env.Version)
	assert.True(t, occurred.Equal(env.OccurredAt))
	assert.JSONEq(t, `{"orderNumber":"ORD-7"}`, string(env.Data))
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	svc := NewService(NewRepository(db), nil)
	event := DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]int{"n": 1},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}
	assert.Equal(t, int64(1), dbtest.Count(t, db, &models.OutboxEvent{}))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{Data: 1}))
}

func TestEmitRejectsUnroutableEvents(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	svc := NewService(NewRepository(db), nil)

	cases := []DomainEvent{
		{EventType: "order_teleported", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Data: 1},
		{EventType: enums.EventOrderCreated, AggregateType: "basket", AggregateID: uuid.New(), Data: 1},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, Data: 1},
	}
	for _, event := range cases {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		assert.Error(t, err, "event %+v", event)
	}
	assert.Equal(t, int64(0), dbtest.Count(t, db, &models.OutboxEvent{}))
}
