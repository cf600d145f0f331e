package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/internal/notifications/providers"
	"github.com/angelmondragon/duka-backend/pkg/db/dbtest"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/metrics"
	"github.com/angelmondragon/duka-backend/pkg/phone"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

type recordingLogs struct {
	mu      sync.Mutex
	entries []models.NotificationLog
}

func (r *recordingLogs) Create(_ context.Context, entry *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *recordingLogs) all() []models.NotificationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.NotificationLog(nil), r.entries...)
}

func testLogger(buf *bytes.Buffer) *logger.Logger {
	if buf == nil {
		buf = &bytes.Buffer{}
	}
	return logger.New(logger.Options{ServiceName: "worker-test", Level: zerolog.DebugLevel, Output: buf})
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		total := 0.0
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func rwanda(t *testing.T) phone.Normalizer {
	t.Helper()
	n, err := phone.NewNormalizer("250", 9)
	require.NoError(t, err)
	return n
}

type smsFixture struct {
	queue     *queue.Queue
	messenger *providers.MockMessenger
	logs      *recordingLogs
	pool      *Pool
	metrics   *metrics.NotificationMetrics
	registry  *prometheus.Registry
}

func newSMSFixture(t *testing.T, policy queue.Policy) smsFixture {
	t.Helper()
	q, err := queue.New(queue.NewMemoryStore(), enums.NotificationChannelSMS, policy)
	require.NoError(t, err)
	messenger := providers.NewMockMessenger()
	handler, err := NewSMSHandler(messenger, rwanda(t))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewNotificationMetrics(reg)
	logs := &recordingLogs{}
	pool, err := NewPool(PoolParams{
		Queue:   q,
		Handler: handler,
		Logs:    logs,
		Logger:  testLogger(nil),
		Metrics: m,
		Config:  PoolConfig{Concurrency: 2, ReserveWait: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return smsFixture{queue: q, messenger: messenger, logs: logs, pool: pool, metrics: m, registry: reg}
}

func enqueueSMS(t *testing.T, q *queue.Queue, to string) *queue.Job {
	t.Helper()
	orderID := uuid.New()
	job, err := q.Enqueue(context.Background(), queue.SMSPayload{To: to, Message: "Duka: order confirmed", OrderID: &orderID}, &orderID)
	require.NoError(t, err)
	return job
}

func TestPoolDeliversAndLogsOnce(t *testing.T) {
	fx := newSMSFixture(t, queue.ExponentialPolicy(3, time.Millisecond))
	job := enqueueSMS(t, fx.queue, "0788123456")

	found, err := fx.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, found)

	sent := fx.messenger.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+250788123456", sent[0].To)

	entries := fx.logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.NotificationStatusSent, entries[0].Status)
	assert.Equal(t, "+250788123456", entries[0].Recipient)
	assert.Equal(t, job.ID, *entries[0].JobID)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "mock", *entries[0].Provider)
	assert.Nil(t, entries[0].Error)

	stats, err := fx.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{}, stats)

	assert.Equal(t, float64(1), counterValue(t, fx.registry, "notification_jobs_processed_total"))
}

func TestPoolEmptyQueue(t *testing.T) {
	fx := newSMSFixture(t, queue.ExponentialPolicy(3, time.Millisecond))
	found, err := fx.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPoolRetriesTransientFailure(t *testing.T) {
	fx := newSMSFixture(t, queue.ExponentialPolicy(3, time.Millisecond))
	enqueueSMS(t, fx.queue, "0788123456")
	ctx := context.Background()

	fx.messenger.FailWith(pkgerrors.New(pkgerrors.CodeDependency, "twilio returned 503"))
	_, err := fx.pool.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Empty(t, fx.logs.all(), "a retried attempt writes no log")

	stats, err := fx.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)

	fx.messenger.FailWith(nil)
	require.Eventually(t, func() bool {
		fx.pool.Sweep(ctx)
		found, err := fx.pool.ProcessNext(ctx)
		return err == nil && found
	}, time.Second, 5*time.Millisecond)

	entries := fx.logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.NotificationStatusSent, entries[0].Status)
	assert.Equal(t, 2, entries[0].Attempts)
}

func TestPoolDeadLettersAfterExhaustion(t *testing.T) {
	fx := newSMSFixture(t, queue.ExponentialPolicy(2, time.Millisecond))
	enqueueSMS(t, fx.queue, "0788123456")
	ctx := context.Background()
	fx.messenger.FailWith(errors.New("connection reset by peer"))

	_, err := fx.pool.ProcessNext(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		fx.pool.Sweep(ctx)
		found, err := fx.pool.ProcessNext(ctx)
		return err == nil && found
	}, time.Second, 5*time.Millisecond)

	entries := fx.logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.NotificationStatusFailed, entries[0].Status)
	assert.Equal(t, 2, entries[0].Attempts)
	require.NotNil(t, entries[0].Error)
	assert.Contains(t, *entries[0].Error, "connection reset")

	stats, err := fx.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Zero(t, stats.Delayed)

	dead, err := fx.queue.DeadJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].LastError, "connection reset")
}

func TestPoolTerminalFailuresSkipRetries(t *testing.T) {
	cases := []struct {
		name string
		to   string
		fail error
	}{
		{name: "invalid number", to: "12"},
		{name: "provider rejected", to: "0788123456", fail: fmt.Errorf("%w: unverified number", providers.ErrRejected)},
		{name: "validation error", to: "0788123456", fail: pkgerrors.New(pkgerrors.CodeValidation, "bad body")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newSMSFixture(t, queue.ExponentialPolicy(3, time.Millisecond))
			enqueueSMS(t, fx.queue, tc.to)
			fx.messenger.FailWith(tc.fail)

			_, err := fx.pool.ProcessNext(context.Background())
			require.NoError(t, err)

			entries := fx.logs.all()
			require.Len(t, entries, 1)
			assert.Equal(t, enums.NotificationStatusFailed, entries[0].Status)
			assert.Equal(t, 1, entries[0].Attempts)

			stats, err := fx.queue.Stats(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Dead)
		})
	}
}

func TestPoolMalformedPayloadIsDead(t *testing.T) {
	fx := newSMSFixture(t, queue.ExponentialPolicy(3, time.Millisecond))
	_, err := fx.queue.Enqueue(context.Background(), "not an object", nil)
	require.NoError(t, err)

	_, err = fx.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	entries := fx.logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.NotificationStatusFailed, entries[0].Status)
	assert.Equal(t, "unknown", entries[0].Recipient)
}

func TestPoolRunRespectsConcurrency(t *testing.T) {
	q, err := queue.New(queue.NewMemoryStore(), enums.NotificationChannelEmail, queue.ExponentialPolicy(3, time.Millisecond))
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := q.Enqueue(context.Background(), queue.EmailPayload{To: "a@example.com"}, nil)
		require.NoError(t, err)
	}

	var inFlight, peak, done atomic.Int32
	handler := HandlerFunc(func(context.Context, *queue.Job) (Delivery, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
		done.Add(1)
		return Delivery{Recipient: "a@example.com"}, nil
	})
	logs := &recordingLogs{}
	pool, err := NewPool(PoolParams{
		Queue:   q,
		Handler: handler,
		Logs:    logs,
		Logger:  testLogger(nil),
		Config:  PoolConfig{Concurrency: 2, ReserveWait: 5 * time.Millisecond, PollInterval: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	require.Eventually(t, func() bool { return done.Load() == 6 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, logs.all(), 6)
}

func TestSupervisorIsolatesChannels(t *testing.T) {
	release := make(chan struct{})
	emailQueue, err := queue.New(queue.NewMemoryStore(), enums.NotificationChannelEmail, queue.ExponentialPolicy(3, time.Millisecond))
	require.NoError(t, err)
	_, err = emailQueue.Enqueue(context.Background(), queue.EmailPayload{To: "a@example.com"}, nil)
	require.NoError(t, err)

	stuck, err := NewPool(PoolParams{
		Queue: emailQueue,
		Handler: HandlerFunc(func(context.Context, *queue.Job) (Delivery, error) {
			<-release
			return Delivery{Recipient: "a@example.com"}, nil
		}),
		Logs:   &recordingLogs{},
		Logger: testLogger(nil),
		Config: PoolConfig{Concurrency: 1, ReserveWait: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	sms := newSMSFixture(t, queue.ExponentialPolicy(3, time.Millisecond))
	enqueueSMS(t, sms.queue, "0788123456")

	sup, err := NewSupervisor(testLogger(nil), stuck, sms.pool)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sms.logs.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	cancel()
	require.NoError(t, <-errCh)
}

func TestSweepLogsJobsThatExpireOnLastAttempt(t *testing.T) {
	fx := newSMSFixture(t, queue.ExponentialPolicy(1, time.Millisecond))
	job := enqueueSMS(t, fx.queue, "0788123456")
	ctx := context.Background()

	// reserved by a worker that died before settling
	reserved, err := fx.queue.Reserve(ctx, time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, reserved)
	time.Sleep(5 * time.Millisecond)

	fx.pool.Sweep(ctx)

	entries := fx.logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.NotificationStatusFailed, entries[0].Status)
	assert.Equal(t, "0788123456", entries[0].Recipient)
	assert.Equal(t, job.ID, *entries[0].JobID)
	assert.Equal(t, 1, entries[0].Attempts)
	require.NotNil(t, entries[0].Error)
	assert.Equal(t, queue.LeaseExpired, *entries[0].Error)
	require.NotNil(t, entries[0].OrderID)

	stats, err := fx.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Dead: 1}, stats)
	assert.Equal(t, float64(1), counterValue(t, fx.registry, "notification_jobs_dead_total"))
}

func TestSweepRequeuesWithoutLogging(t *testing.T) {
	fx := newSMSFixture(t, queue.ExponentialPolicy(3, time.Millisecond))
	enqueueSMS(t, fx.queue, "0788123456")
	ctx := context.Background()

	_, err := fx.queue.Reserve(ctx, time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	fx.pool.Sweep(ctx)
	assert.Empty(t, fx.logs.all())
	stats, err := fx.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Waiting: 1}, stats)
}

func TestPoolRenewsLeaseWhileHandlerRuns(t *testing.T) {
	q, err := queue.New(queue.NewMemoryStore(), enums.NotificationChannelPDF, queue.ExponentialPolicy(3, time.Millisecond))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), queue.PDFPayload{Type: enums.DocumentTypeInvoice, OrderID: uuid.New()}, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	logs := &recordingLogs{}
	pool, err := NewPool(PoolParams{
		Queue: q,
		Handler: HandlerFunc(func(context.Context, *queue.Job) (Delivery, error) {
			<-release
			return Delivery{Recipient: "invoice"}, nil
		}),
		Logs:   logs,
		Logger: testLogger(nil),
		Config: PoolConfig{Concurrency: 1, ReserveWait: 5 * time.Millisecond, Lease: 60 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.ProcessNext(ctx)
	}()

	// several lease periods pass while the handler is still busy
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		pool.Sweep(ctx)
		time.Sleep(5 * time.Millisecond)
	}
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Active: 1}, stats)

	close(release)
	<-done
	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, enums.NotificationStatusSent, entries[0].Status)
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{}, stats)
}

// expiredLeaseQueue reports every renewal as too late.
type expiredLeaseQueue struct {
	*queue.Queue
}

func (expiredLeaseQueue) Extend(context.Context, *queue.Job, time.Duration) error {
	return queue.ErrLeaseLost
}

func TestPoolLeavesJobUnsettledWhenLeaseLost(t *testing.T) {
	q, err := queue.New(queue.NewMemoryStore(), enums.NotificationChannelEmail, queue.ExponentialPolicy(3, time.Millisecond))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), queue.EmailPayload{To: "a@example.com"}, nil)
	require.NoError(t, err)

	logs := &recordingLogs{}
	pool, err := NewPool(PoolParams{
		Queue: expiredLeaseQueue{Queue: q},
		Handler: HandlerFunc(func(context.Context, *queue.Job) (Delivery, error) {
			time.Sleep(50 * time.Millisecond)
			return Delivery{Recipient: "a@example.com"}, nil
		}),
		Logs:   logs,
		Logger: testLogger(nil),
		Config: PoolConfig{Concurrency: 1, ReserveWait: 5 * time.Millisecond, Lease: 15 * time.Millisecond},
	})
	require.NoError(t, err)

	found, err := pool.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, logs.all())

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Active)
}

func TestRedeliveredJobLogsAgainWithoutTouchingOrder(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	order := dbtest.MustCreateOrder(t, db, "ORD-20261017-090000-AB12")

	q, err := queue.New(queue.NewMemoryStore(), enums.NotificationChannelSMS, queue.ExponentialPolicy(3, time.Millisecond))
	require.NoError(t, err)
	messenger := providers.NewMockMessenger()
	handler, err := NewSMSHandler(messenger, rwanda(t))
	require.NoError(t, err)
	pool, err := NewPool(PoolParams{
		Queue:   q,
		Handler: handler,
		Logs:    notifications.NewLogRepository(db),
		Logger:  testLogger(nil),
		Config:  PoolConfig{Concurrency: 1, ReserveWait: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = q.Enqueue(ctx, queue.SMSPayload{To: order.CustomerPhone, Message: "Duka: order confirmed", OrderID: &order.ID}, &order.ID)
	require.NoError(t, err)
	job, err := q.Reserve(ctx, time.Millisecond, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	var before models.Order
	require.NoError(t, db.Preload("Payment").Preload("Delivery").First(&before, "id = ?", order.ID).Error)

	pool.Process(ctx, job)
	pool.Process(ctx, job)

	assert.Len(t, messenger.Sent(), 2)
	var entries []models.NotificationLog
	require.NoError(t, db.Find(&entries, "order_id = ?", order.ID).Error)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, enums.NotificationStatusSent, entry.Status)
		assert.Equal(t, job.ID, *entry.JobID)
	}

	var after models.Order
	require.NoError(t, db.Preload("Payment").Preload("Delivery").First(&after, "id = ?", order.ID).Error)
	assert.Equal(t, before.PaymentStatus, after.PaymentStatus)
	assert.Equal(t, before.DeliveryStatus, after.DeliveryStatus)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.Equal(t, before.Payment.Status, after.Payment.Status)
	assert.True(t, before.Payment.UpdatedAt.Equal(after.Payment.UpdatedAt))
	assert.Equal(t, before.Delivery.Status, after.Delivery.Status)
	assert.True(t, before.Delivery.UpdatedAt.Equal(after.Delivery.UpdatedAt))
}

func TestNewPoolValidation(t *testing.T) {
	_, err := NewPool(PoolParams{})
	require.Error(t, err)
	_, err = NewSupervisor(testLogger(nil))
	require.Error(t, err)
}
