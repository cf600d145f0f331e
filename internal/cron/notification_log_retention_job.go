package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/duka-backend/pkg/logger"
)

const notificationLogRetentionDays = 180

type notificationLogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationLogRetentionJobParams struct {
	Logger        *logger.Logger
	Repository    notificationLogPruner
	RetentionDays int
}

func NewNotificationLogRetentionJob(params NotificationLogRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notification log repository required")
	}
	return &notificationLogRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: orDefault(params.RetentionDays, notificationLogRetentionDays),
		now:       time.Now,
	}, nil
}

type notificationLogRetentionJob struct {
	logg      *logger.Logger
	repo      notificationLogPruner
	retention int
	now       func() time.Time
}

func (j *notificationLogRetentionJob) Name() string { return "notification-log-retention" }

func (j *notificationLogRetentionJob) Run(ctx context.Context) error {
	cutoff := daysAgo(j.now(), j.retention)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("notification log retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "notification log retention complete")
	return nil
}
