package queue

import (
	"context"
	"fmt"

	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// Set holds one queue per notification channel, built from the same config in
// every binary so producers and consumers agree on keys and retry policy.
type Set struct {
	queues map[enums.NotificationChannel]*Queue
}

// NewSet builds the email, sms, whatsapp and pdf queues. Messaging channels
// back off exponentially; pdf rendering retries on a constant delay.
func NewSet(store Store, cfg config.NotificationsConfig) (*Set, error) {
	policies := map[enums.NotificationChannel]Policy{
		enums.NotificationChannelEmail:    ExponentialPolicy(cfg.EmailAttempts, cfg.BackoffBase),
		enums.NotificationChannelSMS:      ExponentialPolicy(cfg.SMSAttempts, cfg.BackoffBase),
		enums.NotificationChannelWhatsApp: ExponentialPolicy(cfg.WhatsAppAttempts, cfg.BackoffBase),
		enums.NotificationChannelPDF:      ConstantPolicy(cfg.PDFAttempts, cfg.PDFBackoff),
	}
	set := &Set{queues: make(map[enums.NotificationChannel]*Queue, len(policies))}
	for _, channel := range enums.NotificationChannels() {
		q, err := New(store, channel, policies[channel])
		if err != nil {
			return nil, fmt.Errorf("build %s queue: %w", channel, err)
		}
		set.queues[channel] = q
	}
	return set, nil
}

func (s *Set) Get(channel enums.NotificationChannel) *Queue {
	return s.queues[channel]
}

// All returns the queues in channel order.
func (s *Set) All() []*Queue {
	out := make([]*Queue, 0, len(s.queues))
	for _, channel := range enums.NotificationChannels() {
		if q, ok := s.queues[channel]; ok {
			out = append(out, q)
		}
	}
	return out
}

// Stats reports every queue's depth keyed by channel name.
func (s *Set) Stats(ctx context.Context) (map[string]Stats, error) {
	out := make(map[string]Stats, len(s.queues))
	for _, q := range s.All() {
		stats, err := q.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s stats: %w", q.Channel(), err)
		}
		out[string(q.Channel())] = stats
	}
	return out, nil
}
