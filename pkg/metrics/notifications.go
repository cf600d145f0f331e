package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks job outcomes per notification channel.
type NotificationMetrics struct {
	processed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	retried   *prometheus.CounterVec
	dead      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewNotificationMetrics registers the channel worker metrics on reg. A nil
// registerer yields a no-op recorder.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	labels := []string{"channel"}
	m := &NotificationMetrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_processed_total",
			Help: "Notification jobs delivered successfully.",
		}, labels),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_failed_total",
			Help: "Notification job attempts that returned an error.",
		}, labels),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_retried_total",
			Help: "Notification jobs scheduled for another attempt.",
		}, labels),
		dead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_dead_total",
			Help: "Notification jobs moved to the dead-letter list.",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_job_duration_seconds",
			Help:    "Time spent in a channel handler.",
			Buckets: prometheus.DefBuckets,
		}, labels),
	}
	reg.MustRegister(m.processed, m.failed, m.retried, m.dead, m.duration)
	return m
}

// IncProcessed counts a successfully delivered job.
func (m *NotificationMetrics) IncProcessed(channel string) {
	if m == nil {
		return
	}
	incChannel(m.processed, channel)
}

// IncFailed counts a failed handler attempt, retried or not.
func (m *NotificationMetrics) IncFailed(channel string) {
	if m == nil {
		return
	}
	incChannel(m.failed, channel)
}

func (m *NotificationMetrics) IncRetried(channel string) {
	if m == nil {
		return
	}
	incChannel(m.retried, channel)
}

func (m *NotificationMetrics) IncDead(channel string) {
	if m == nil {
		return
	}
	incChannel(m.dead, channel)
}

// ObserveDuration records how long one handler invocation took.
func (m *NotificationMetrics) ObserveDuration(channel string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(channel)).Observe(d.Seconds())
}

func incChannel(vec *prometheus.CounterVec, channel string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(normalizeLabel(channel)).Inc()
}
