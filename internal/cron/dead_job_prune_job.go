package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/logger"
)

const defaultDeadRetention = 1000

// DeadTrimmer is satisfied by *queue.Queue.
type DeadTrimmer interface {
	Channel() enums.NotificationChannel
	TrimDead(ctx context.Context, keep int64) (int, error)
}

type DeadJobPruneJobParams struct {
	Logger *logger.Logger
	Queues []DeadTrimmer
	Keep   int64
}

// NewDeadJobPruneJob bounds every channel's dead-letter list to the newest
// Keep entries.
func NewDeadJobPruneJob(params DeadJobPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(params.Queues) == 0 {
		return nil, fmt.Errorf("at least one queue required")
	}
	keep := params.Keep
	if keep <= 0 {
		keep = defaultDeadRetention
	}
	return &deadJobPruneJob{logg: params.Logger, queues: params.Queues, keep: keep}, nil
}

type deadJobPruneJob struct {
	logg   *logger.Logger
	queues []DeadTrimmer
	keep   int64
}

func (j *deadJobPruneJob) Name() string { return "dead-job-prune" }

// Run trims each queue independently; one failing channel does not stop the rest.
func (j *deadJobPruneJob) Run(ctx context.Context) error {
	var errs error
	for _, q := range j.queues {
		removed, err := q.TrimDead(ctx, j.keep)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("trim %s dead jobs: %w", q.Channel(), err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"channel": string(q.Channel()),
			"keep":    j.keep,
			"removed": removed,
		}), "dead jobs pruned")
	}
	return errs
}
