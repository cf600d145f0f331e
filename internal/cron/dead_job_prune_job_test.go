package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

type brokenTrimmer struct{}

func (brokenTrimmer) Channel() enums.NotificationChannel { return enums.NotificationChannelWhatsApp }

func (brokenTrimmer) TrimDead(context.Context, int64) (int, error) {
	return 0, errors.New("redis: i/o timeout")
}

func deadQueue(t *testing.T, channel enums.NotificationChannel, dead int) *queue.Queue {
	t.Helper()
	q, err := queue.New(queue.NewMemoryStore(), channel, queue.ConstantPolicy(1, time.Second))
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < dead; i++ {
		_, err := q.Enqueue(ctx, queue.SMSPayload{To: "0788123456", Message: "hi"}, nil)
		require.NoError(t, err)
		job, err := q.Reserve(ctx, time.Millisecond, time.Minute)
		require.NoError(t, err)
		require.NotNil(t, job)
		require.NoError(t, q.Dead(ctx, job, errors.New("provider rejected")))
	}
	return q
}

func TestDeadJobPruneJobTrimsEveryChannel(t *testing.T) {
	sms := deadQueue(t, enums.NotificationChannelSMS, 5)
	email := deadQueue(t, enums.NotificationChannelEmail, 1)

	job, err := NewDeadJobPruneJob(DeadJobPruneJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Queues: []DeadTrimmer{sms, brokenTrimmer{}, email},
		Keep:   2,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whatsapp")

	smsStats, err := sms.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), smsStats.Dead)
	emailStats, err := email.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), emailStats.Dead)
}

func TestNotificationLogRetentionJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	repo := &fakeLogPruner{deleted: 12}
	jobIface, err := NewNotificationLogRetentionJob(NotificationLogRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
	})
	require.NoError(t, err)
	job := jobIface.(*notificationLogRetentionJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, repo.cutoff.Equal(now.Add(-notificationLogRetentionDays*24*time.Hour)))

	repo.err = errors.New("boom")
	assert.Error(t, job.Run(context.Background()))
}

type fakeLogPruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeLogPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}
