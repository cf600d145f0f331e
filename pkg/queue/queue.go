package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/redis"
)

// LeaseExpired is the error recorded on jobs dead-lettered by RecoverStalled.
const LeaseExpired = "lease expired"

const (
	partWaiting = "waiting"
	partActive  = "active"
	partDelayed = "delayed"
	partLeases  = "leases"
	partDead    = "dead"
	partJobs    = "jobs"

	defaultReserveWait = time.Second
	defaultLease       = 2 * time.Minute
	sweepBatch         = 100
)

// Store is the subset of the redis client the queue relies on.
type Store interface {
	LPush(ctx context.Context, key string, values ...any) (int64, error)
	BLMove(ctx context.Context, src, dst string, timeout time.Duration) (string, error)
	LRem(ctx context.Context, key string, count int64, value any) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LLen(ctx context.Context, key string) (int64, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZAddExisting(ctx context.Context, key string, score float64, member string) (bool, error)
	ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	QueueKey(queue, part string) string
}

// ErrLeaseLost means the job's lease expired and it was handed back to the queue.
var ErrLeaseLost = errors.New("job lease lost")

// Recovery reports one RecoverStalled pass. Dead holds the jobs that ran out
// of attempts while leased.
type Recovery struct {
	Requeued int
	Dead     []*Job
}

// Total counts every job moved off an expired lease.
func (r Recovery) Total() int { return r.Requeued + len(r.Dead) }

// Stats is a point-in-time view of one queue.
type Stats struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

// Queue is a durable per-channel job queue. Job bodies live in a hash and the
// lists/sorted sets only carry ids, so a job is in exactly one of waiting,
// active, delayed or dead at a time.
type Queue struct {
	store   Store
	channel enums.NotificationChannel
	policy  Policy
	now     func() time.Time
}

func New(store Store, channel enums.NotificationChannel, policy Policy) (*Queue, error) {
	if store == nil {
		return nil, errors.New("queue store required")
	}
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid queue channel %q", channel)
	}
	return &Queue{
		store:   store,
		channel: channel,
		policy:  policy,
		now:     time.Now,
	}, nil
}

func (q *Queue) Channel() enums.NotificationChannel { return q.channel }

func (q *Queue) Policy() Policy { return q.policy }

// Enqueue stores payload as a new waiting job.
func (q *Queue) Enqueue(ctx context.Context, payload any, orderID *uuid.UUID) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", q.channel, err)
	}
	job := &Job{
		ID:          uuid.NewString(),
		Channel:     q.channel,
		Payload:     raw,
		OrderID:     orderID,
		MaxAttempts: q.policy.MaxAttempts,
		EnqueuedAt:  q.now().UTC(),
	}
	if err := q.save(ctx, job); err != nil {
		return nil, err
	}
	if _, err := q.store.LPush(ctx, q.key(partWaiting), job.ID); err != nil {
		_ = q.store.HDel(ctx, q.key(partJobs), job.ID)
		return nil, fmt.Errorf("push %s job: %w", q.channel, err)
	}
	return job, nil
}

// Reserve blocks up to wait for the next job, moves it to the active list and
// leases it for lease. It returns nil, nil when nothing arrived.
func (q *Queue) Reserve(ctx context.Context, wait, lease time.Duration) (*Job, error) {
	if wait <= 0 {
		wait = defaultReserveWait
	}
	if lease <= 0 {
		lease = defaultLease
	}
	id, err := q.store.BLMove(ctx, q.key(partWaiting), q.key(partActive), wait)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reserve %s job: %w", q.channel, err)
	}
	if err := q.store.ZAdd(ctx, q.key(partLeases), score(q.now().Add(lease)), id); err != nil {
		return nil, fmt.Errorf("lease %s job %s: %w", q.channel, id, err)
	}

	job, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		q.release(ctx, id)
		return nil, nil
	}
	job.Attempt++
	if err := q.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Extend pushes the lease of a reserved job out to now+lease. It returns
// ErrLeaseLost when the lease already expired and the job was recovered.
func (q *Queue) Extend(ctx context.Context, job *Job, lease time.Duration) error {
	if lease <= 0 {
		lease = defaultLease
	}
	held, err := q.store.ZAddExisting(ctx, q.key(partLeases), score(q.now().Add(lease)), job.ID)
	if err != nil {
		return fmt.Errorf("extend %s job %s: %w", q.channel, job.ID, err)
	}
	if !held {
		return ErrLeaseLost
	}
	return nil
}

// Ack removes a finished job entirely.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if _, err := q.store.LRem(ctx, q.key(partActive), 1, job.ID); err != nil {
		return fmt.Errorf("ack %s job %s: %w", q.channel, job.ID, err)
	}
	if _, err := q.store.ZRem(ctx, q.key(partLeases), job.ID); err != nil {
		return fmt.Errorf("ack %s job %s: %w", q.channel, job.ID, err)
	}
	return q.store.HDel(ctx, q.key(partJobs), job.ID)
}

// Retry schedules job to become waiting again after delay.
func (q *Queue) Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error {
	job.LastError = errorText(cause)
	if err := q.save(ctx, job); err != nil {
		return err
	}
	if err := q.store.ZAdd(ctx, q.key(partDelayed), score(q.now().Add(delay)), job.ID); err != nil {
		return fmt.Errorf("delay %s job %s: %w", q.channel, job.ID, err)
	}
	q.release(ctx, job.ID)
	return nil
}

// Dead moves job to the dead-letter list.
func (q *Queue) Dead(ctx context.Context, job *Job, cause error) error {
	job.LastError = errorText(cause)
	if err := q.save(ctx, job); err != nil {
		return err
	}
	if _, err := q.store.LPush(ctx, q.key(partDead), job.ID); err != nil {
		return fmt.Errorf("dead-letter %s job %s: %w", q.channel, job.ID, err)
	}
	q.release(ctx, job.ID)
	return nil
}

// PromoteDue moves delayed jobs whose time has come back to waiting.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	ids, err := q.store.ZRangeByScore(ctx, q.key(partDelayed), score(q.now()), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("scan delayed %s jobs: %w", q.channel, err)
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.store.ZRem(ctx, q.key(partDelayed), id)
		if err != nil {
			return promoted, fmt.Errorf("promote %s job %s: %w", q.channel, id, err)
		}
		// another worker claimed it first
		if removed == 0 {
			continue
		}
		if _, err := q.store.LPush(ctx, q.key(partWaiting), id); err != nil {
			return promoted, fmt.Errorf("promote %s job %s: %w", q.channel, id, err)
		}
		promoted++
	}
	return promoted, nil
}

// RecoverStalled returns jobs whose lease expired to waiting, or to the dead
// list when their attempts are spent.
func (q *Queue) RecoverStalled(ctx context.Context) (Recovery, error) {
	var out Recovery
	ids, err := q.store.ZRangeByScore(ctx, q.key(partLeases), score(q.now()), sweepBatch)
	if err != nil {
		return out, fmt.Errorf("scan %s leases: %w", q.channel, err)
	}
	for _, id := range ids {
		removed, err := q.store.ZRem(ctx, q.key(partLeases), id)
		if err != nil {
			return out, fmt.Errorf("recover %s job %s: %w", q.channel, id, err)
		}
		if removed == 0 {
			continue
		}
		if _, err := q.store.LRem(ctx, q.key(partActive), 1, id); err != nil {
			return out, fmt.Errorf("recover %s job %s: %w", q.channel, id, err)
		}
		job, err := q.load(ctx, id)
		if err != nil {
			return out, err
		}
		if job == nil {
			continue
		}
		if !job.Exhausted() {
			if _, err := q.store.LPush(ctx, q.key(partWaiting), id); err != nil {
				return out, fmt.Errorf("recover %s job %s: %w", q.channel, id, err)
			}
			out.Requeued++
			continue
		}
		job.LastError = LeaseExpired
		if err := q.save(ctx, job); err != nil {
			return out, err
		}
		if _, err := q.store.LPush(ctx, q.key(partDead), id); err != nil {
			return out, fmt.Errorf("recover %s job %s: %w", q.channel, id, err)
		}
		out.Dead = append(out.Dead, job)
	}
	return out, nil
}

// DeadJobs returns up to limit dead-lettered jobs, newest first.
func (q *Queue) DeadJobs(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.store.LRange(ctx, q.key(partDead), 0, limit-1)
	if err != nil {
		return nil, fmt.Errorf("list dead %s jobs: %w", q.channel, err)
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

// TrimDead keeps the newest keep dead jobs and drops the rest with their bodies.
func (q *Queue) TrimDead(ctx context.Context, keep int64) (int, error) {
	if keep < 0 {
		keep = 0
	}
	stale, err := q.store.LRange(ctx, q.key(partDead), keep, -1)
	if err != nil {
		return 0, fmt.Errorf("scan dead %s jobs: %w", q.channel, err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := q.store.HDel(ctx, q.key(partJobs), stale...); err != nil {
		return 0, fmt.Errorf("drop dead %s bodies: %w", q.channel, err)
	}
	// LTRIM with start > stop empties the list.
	start, stop := int64(0), keep-1
	if keep == 0 {
		start, stop = 1, 0
	}
	if err := q.store.LTrim(ctx, q.key(partDead), start, stop); err != nil {
		return 0, fmt.Errorf("trim dead %s jobs: %w", q.channel, err)
	}
	return len(stale), nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		err   error
	)
	if stats.Waiting, err = q.store.LLen(ctx, q.key(partWaiting)); err != nil {
		return Stats{}, err
	}
	if stats.Active, err = q.store.LLen(ctx, q.key(partActive)); err != nil {
		return Stats{}, err
	}
	if stats.Delayed, err = q.store.ZCard(ctx, q.key(partDelayed)); err != nil {
		return Stats{}, err
	}
	if stats.Dead, err = q.store.LLen(ctx, q.key(partDead)); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (q *Queue) release(ctx context.Context, id string) {
	_, _ = q.store.LRem(ctx, q.key(partActive), 1, id)
	_, _ = q.store.ZRem(ctx, q.key(partLeases), id)
}

func (q *Queue) save(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode %s job %s: %w", q.channel, job.ID, err)
	}
	if err := q.store.HSet(ctx, q.key(partJobs), job.ID, string(raw)); err != nil {
		return fmt.Errorf("store %s job %s: %w", q.channel, job.ID, err)
	}
	return nil
}

func (q *Queue) load(ctx context.Context, id string) (*Job, error) {
	raw, err := q.store.HGet(ctx, q.key(partJobs), id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s job %s: %w", q.channel, id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode %s job %s: %w", q.channel, id, err)
	}
	return &job, nil
}

func (q *Queue) key(part string) string {
	return q.store.QueueKey(string(q.channel), part)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ Store = (*redis.Client)(nil)
