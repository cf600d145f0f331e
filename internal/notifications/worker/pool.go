// Package worker drains the per-channel notification queues.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/duka-backend/internal/notifications/providers"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/metrics"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

const (
	defaultConcurrency  = 1
	defaultPollInterval = time.Second
	defaultReserveWait  = time.Second
	defaultLease        = 2 * time.Minute
	reserveErrorBackoff = 2 * time.Second
	maxLoggedError      = 1000
)

// Delivery describes who a job was for, filled in by handlers even when they fail.
type Delivery struct {
	Recipient string
	Subject   string
	Provider  string
	Reference string
}

// Handler performs one job.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) (Delivery, error)
}

type HandlerFunc func(ctx context.Context, job *queue.Job) (Delivery, error)

func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job) (Delivery, error) {
	return f(ctx, job)
}

type jobQueue interface {
	Channel() enums.NotificationChannel
	Policy() queue.Policy
	Reserve(ctx context.Context, wait, lease time.Duration) (*queue.Job, error)
	Extend(ctx context.Context, job *queue.Job, lease time.Duration) error
	Ack(ctx context.Context, job *queue.Job) error
	Retry(ctx context.Context, job *queue.Job, delay time.Duration, cause error) error
	Dead(ctx context.Context, job *queue.Job, cause error) error
	PromoteDue(ctx context.Context) (int, error)
	RecoverStalled(ctx context.Context) (queue.Recovery, error)
}

type logWriter interface {
	Create(ctx context.Context, entry *models.NotificationLog) error
}

// PoolConfig bounds one channel. RatePerSecond <= 0 disables the limiter.
type PoolConfig struct {
	Concurrency   int
	RatePerSecond float64
	PollInterval  time.Duration
	ReserveWait   time.Duration
	Lease         time.Duration
}

type PoolParams struct {
	Queue   jobQueue
	Handler Handler
	Logs    logWriter
	Logger  *logger.Logger
	Metrics *metrics.NotificationMetrics
	Config  PoolConfig
}

// Pool runs one channel's jobs with bounded concurrency and an optional rate limit.
type Pool struct {
	queue   jobQueue
	handler Handler
	logs    logWriter
	logg    *logger.Logger
	metrics *metrics.NotificationMetrics
	cfg     PoolConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

func NewPool(params PoolParams) (*Pool, error) {
	if params.Queue == nil {
		return nil, errors.New("queue required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler required")
	}
	if params.Logs == nil {
		return nil, errors.New("notification log writer required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	cfg := params.Config
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReserveWait <= 0 {
		cfg.ReserveWait = defaultReserveWait
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}

	limit := rate.Inf
	burst := cfg.Concurrency
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		if b := int(cfg.RatePerSecond); b > burst {
			burst = b
		}
	}
	return &Pool{
		queue:   params.Queue,
		handler: params.Handler,
		logs:    params.Logs,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

func (p *Pool) Channel() enums.NotificationChannel { return p.queue.Channel() }

// Run consumes until ctx is cancelled, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context) error {
	ctx = p.logg.WithField(ctx, "channel", string(p.Channel()))
	p.logg.Info(ctx, "notification pool started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.sweepLoop(gctx) })
	g.Go(func() error { return p.consumeLoop(gctx) })
	err := g.Wait()

	p.logg.Info(ctx, "notification pool stopped")
	return err
}

func (p *Pool) consumeLoop(ctx context.Context) error {
	defer p.drain()
	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		job, err := p.queue.Reserve(ctx, p.cfg.ReserveWait, p.cfg.Lease)
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			p.logg.Error(ctx, "reserve notification job failed", err)
			if !sleep(ctx, reserveErrorBackoff) {
				return nil
			}
			continue
		}
		if job == nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		// a job left behind here returns to waiting once its lease expires
		if err := p.limiter.Wait(ctx); err != nil {
			p.sem.Release(1)
			return nil
		}
		go func(job *queue.Job) {
			defer p.sem.Release(1)
			p.Process(context.WithoutCancel(ctx), job)
		}(job)
	}
}

// drain blocks until every in-flight job has released its slot.
func (p *Pool) drain() {
	_ = p.sem.Acquire(context.Background(), int64(p.cfg.Concurrency))
	p.sem.Release(int64(p.cfg.Concurrency))
}

func (p *Pool) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep promotes due retries and recovers jobs whose lease expired. Jobs that
// expired on their last attempt are logged FAILED here since no handler will
// settle them.
func (p *Pool) Sweep(ctx context.Context) {
	if n, err := p.queue.PromoteDue(ctx); err != nil {
		p.logg.Error(ctx, "promote delayed notification jobs failed", err)
	} else if n > 0 {
		p.logg.Debug(p.logg.WithField(ctx, "count", n), "promoted delayed notification jobs")
	}
	recovered, err := p.queue.RecoverStalled(ctx)
	if err != nil {
		p.logg.Error(ctx, "recover stalled notification jobs failed", err)
	}
	if n := recovered.Total(); n > 0 {
		p.logg.Warn(p.logg.WithField(ctx, "count", n), "recovered stalled notification jobs")
	}
	for _, job := range recovered.Dead {
		channel := string(job.Channel)
		jobCtx := p.logg.WithFields(ctx, map[string]any{"job_id": job.ID, "attempt": job.Attempt})
		p.writeLog(jobCtx, job, Delivery{Recipient: job.Recipient()}, enums.NotificationStatusFailed, errors.New(queue.LeaseExpired))
		p.metrics.IncDead(channel)
		p.logg.Warn(jobCtx, "notification job dead-lettered after lease expiry")
	}
}

// ProcessNext reserves and handles a single job synchronously. It reports
// whether a job was found.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Reserve(ctx, p.cfg.ReserveWait, p.cfg.Lease)
	if err != nil || job == nil {
		return false, err
	}
	p.Process(ctx, job)
	return true, nil
}

// Process runs the handler for job and settles it: ack on success, retry
// while the policy allows, dead-letter otherwise. Exactly one notification
// log is written per settled job.
func (p *Pool) Process(ctx context.Context, job *queue.Job) {
	channel := string(job.Channel)
	ctx = p.logg.WithFields(ctx, map[string]any{
		"channel": channel,
		"job_id":  job.ID,
		"attempt": job.Attempt,
	})
	if job.OrderID != nil {
		ctx = p.logg.WithOrderID(ctx, job.OrderID.String())
	}

	start := time.Now()
	stopRenew, lost := p.renewLease(ctx, job)
	delivery, err := p.handler.Handle(ctx, job)
	stopRenew()
	p.metrics.ObserveDuration(channel, time.Since(start))

	if lost.Load() {
		// the job went back to the queue and belongs to whoever reserves it next
		p.logg.Warn(ctx, "notification job lease lost, leaving it unsettled")
		return
	}

	if err == nil {
		p.writeLog(ctx, job, delivery, enums.NotificationStatusSent, nil)
		if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
			p.logg.Error(ctx, "ack notification job failed", ackErr)
		}
		p.metrics.IncProcessed(channel)
		p.logg.Debug(ctx, "notification job delivered")
		return
	}

	p.metrics.IncFailed(channel)
	if !isTerminal(err) && !job.Exhausted() {
		if delay, ok := p.queue.Policy().NextDelay(job.Attempt); ok {
			if retryErr := p.queue.Retry(ctx, job, delay, err); retryErr != nil {
				p.logg.Error(ctx, "schedule notification retry failed", retryErr)
				return
			}
			p.metrics.IncRetried(channel)
			logCtx := p.logg.WithFields(ctx, map[string]any{
				"error": err.Error(),
				"delay": delay.String(),
			})
			p.logg.Warn(logCtx, "notification job failed, retrying")
			return
		}
	}

	p.writeLog(ctx, job, delivery, enums.NotificationStatusFailed, err)
	if deadErr := p.queue.Dead(ctx, job, err); deadErr != nil {
		p.logg.Error(ctx, "dead-letter notification job failed", deadErr)
	}
	p.metrics.IncDead(channel)
	p.logg.Error(ctx, "notification job dead-lettered", err)
}

// renewLease extends job's lease every third of the lease period until stop
// is called. lost flips when the queue reports the lease already expired.
func (p *Pool) renewLease(ctx context.Context, job *queue.Job) (stop func(), lost *atomic.Bool) {
	lost = &atomic.Bool{}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(p.cfg.Lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := p.queue.Extend(ctx, job, p.cfg.Lease)
				if errors.Is(err, queue.ErrLeaseLost) {
					lost.Store(true)
					return
				}
				if err != nil {
					p.logg.Error(ctx, "extend notification job lease failed", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}, lost
}

func (p *Pool) writeLog(ctx context.Context, job *queue.Job, delivery Delivery, status enums.NotificationStatus, cause error) {
	jobID := job.ID
	entry := &models.NotificationLog{
		Channel:   job.Channel,
		Recipient: delivery.Recipient,
		Subject:   delivery.Subject,
		Status:    status,
		OrderID:   job.OrderID,
		JobID:     &jobID,
		Attempts:  job.Attempt,
	}
	if delivery.Provider != "" {
		provider := delivery.Provider
		entry.Provider = &provider
	}
	if cause != nil {
		msg := cause.Error()
		if len(msg) > maxLoggedError {
			msg = msg[:maxLoggedError]
		}
		entry.Error = &msg
	}
	if entry.Recipient == "" {
		entry.Recipient = "unknown"
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		p.logg.Error(p.logg.WithRecipient(ctx, entry.Recipient), "write notification log failed", err)
	}
}

// isTerminal reports failures another attempt cannot fix.
func isTerminal(err error) bool {
	if errors.Is(err, queue.ErrTerminal) || errors.Is(err, providers.ErrRejected) {
		return true
	}
	return !pkgerrors.IsRetryable(err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func subjectFor(channel enums.NotificationChannel, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return string(channel)
	}
	return fmt.Sprintf("%s: %s", channel, detail)
}
