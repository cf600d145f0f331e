package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/metrics"
	"github.com/angelmondragon/duka-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var (
	errAttemptsExhausted = errors.New("max publish attempts reached")
	errUnroutable        = errors.New("topic has no publisher")
)

// outcome is what the relay decided for a single outbox row.
type outcome string

const (
	outcomePublished    outcome = "published"
	outcomeDeferred     outcome = "deferred"
	outcomeDeadLettered outcome = "dead_lettered"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher is the slice of *gcppubsub.Publisher the relay uses.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	PubSub        pubSubClient
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
	// OpenTopic overrides how topic publishers are created; tests use it.
	OpenTopic func(topic string) topicPublisher
}

// Service relays committed outbox rows to Pub/Sub. Rows of one aggregate share
// an ordering key so an order's payment and delivery changes arrive in the
// order they were committed.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	registry    registryResolver
	dlq         dlqRepository
	metrics     *metrics.OutboxMetrics
	openTopic   func(topic string) topicPublisher
	topics      map[string]topicPublisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	openTopic := params.OpenTopic
	if openTopic == nil {
		openTopic = func(topic string) topicPublisher {
			p := params.PubSub.Publisher(topic)
			if p == nil {
				return nil
			}
			p.EnableMessageOrdering = true
			return orderedPublisher{p}
		}
	}

	oc := params.Config.Outbox
	svc := &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		metrics:     params.Metrics,
		openTopic:   openTopic,
		topics:      make(map[string]topicPublisher),
		batchSize:   oc.BatchSize,
		maxAttempts: oc.MaxAttempts,
		poll:        time.Duration(oc.PollIntervalMS) * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.poll <= 0 {
		svc.poll = defaultPoll
	}
	return svc, nil
}

func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	defer s.stopTopics()

	idle := retry.WithJitter(jitterWindow, retry.NewConstant(s.poll))
	failing := errorBackoff(s.poll)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		n, err := s.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = failing.Next()
		case n == 0:
			failing = errorBackoff(s.poll)
			wait, _ = idle.Next()
		default:
			failing = errorBackoff(s.poll)
			continue
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// drain relays one batch inside a single transaction and reports how many rows
// it claimed. Per-row publish failures are recorded on the row; only storage
// errors abort the batch.
func (s *Service) drain(ctx context.Context) (int, error) {
	var claimed int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			result, topic, cause := s.relay(ctx, event)
			if err := s.settle(ctx, tx, event, result, topic, cause); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// relay resolves and publishes one row without touching storage.
func (s *Service) relay(ctx context.Context, event models.OutboxEvent) (outcome, string, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, "", err
	}
	topic := resolved.Descriptor.Topic

	pub := s.topic(topic)
	if pub == nil {
		return outcomeDeadLettered, topic, fmt.Errorf("%w: %s", errUnroutable, topic)
	}

	key := event.AggregateID.String()
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   key,
			"schema_version": fmt.Sprint(resolved.Envelope.Version),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	res := pub.Publish(pubCtx, msg)
	if res == nil {
		return outcomeDeadLettered, topic, fmt.Errorf("publisher for %s returned no result", topic)
	}
	if _, err := res.Get(pubCtx); err != nil {
		// a failed ordered publish pauses the key until resumed
		pub.ResumePublish(key)
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return outcomeDeadLettered, topic, err
		}
		if event.AttemptCount+1 >= s.maxAttempts {
			return outcomeDeadLettered, topic, fmt.Errorf("%w: %w", errAttemptsExhausted, err)
		}
		return outcomeDeferred, topic, err
	}
	return outcomePublished, topic, nil
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, result outcome, topic string, cause error) error {
	s.metrics.Relayed(string(event.EventType), string(result))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
		"topic":         topic,
		"outcome":       result,
	})

	switch result {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.ObserveLag(string(event.EventType), s.now().Sub(event.CreatedAt))
		s.logg.Info(logCtx, "outbox event published")
		return nil

	case outcomeDeferred:
		s.logg.Warn(s.logg.WithField(logCtx, "error", cause.Error()), "outbox publish deferred")
		if err := s.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		return nil
	}

	reason := enums.OutboxDLQReasonNonRetryable
	switch {
	case errors.Is(cause, errAttemptsExhausted):
		reason = enums.OutboxDLQReasonMaxAttempts
	case errors.Is(cause, errUnroutable):
		reason = enums.OutboxDLQReasonUnroutable
	}
	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
		"error":        cause.Error(),
		"error_reason": reason,
		"replayable":   reason.Replayable(),
	}), "outbox event dead-lettered")

	msg := cause.Error()
	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) topic(name string) topicPublisher {
	if pub, ok := s.topics[name]; ok {
		return pub
	}
	pub := s.openTopic(name)
	if pub != nil {
		s.topics[name] = pub
	}
	return pub
}

// stopTopics flushes buffered messages before the process exits.
func (s *Service) stopTopics() {
	for name, pub := range s.topics {
		pub.Stop()
		delete(s.topics, name)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// errorBackoff doubles the wait after each failed batch, capped at maxBackoff.
func errorBackoff(interval time.Duration) retry.Backoff {
	b := retry.NewExponential(2 * interval)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithJitter(jitterWindow, b)
}

type orderedPublisher struct {
	*gcppubsub.Publisher
}

func (p orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
