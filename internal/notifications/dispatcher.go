package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/internal/notifications/providers"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

// Enqueuer is the producer side of a channel queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, orderID *uuid.UUID) (*queue.Job, error)
}

type logWriter interface {
	Create(ctx context.Context, entry *models.NotificationLog) error
}

// EnqueuedJob reports one channel the dispatcher tried. JobID is empty when
// the enqueue degraded to a no-op.
type EnqueuedJob struct {
	Channel enums.NotificationChannel `json:"channel"`
	JobID   string                    `json:"jobId,omitempty"`
}

// DispatchResult lists every enqueue attempt of one Dispatch call.
type DispatchResult struct {
	Jobs []EnqueuedJob `json:"jobs"`
}

// JobID returns the first job id enqueued on channel, or "".
func (r DispatchResult) JobID(channel enums.NotificationChannel) string {
	for _, job := range r.Jobs {
		if job.Channel == channel && job.JobID != "" {
			return job.JobID
		}
	}
	return ""
}

// Enqueued counts attempts that produced a job.
func (r DispatchResult) Enqueued() int {
	n := 0
	for _, job := range r.Jobs {
		if job.JobID != "" {
			n++
		}
	}
	return n
}

// Skipped counts attempts that degraded to a no-op.
func (r DispatchResult) Skipped() int {
	return len(r.Jobs) - r.Enqueued()
}

// DispatcherParams wires the dispatcher. Queues may omit channels whose
// transport is not configured; those enqueues degrade to a logged no-op.
type DispatcherParams struct {
	Queues          map[enums.NotificationChannel]Enqueuer
	DirectEmail     providers.EmailProvider
	Logs            logWriter
	Logger          *logger.Logger
	WhatsAppEnabled bool
	TrackingBaseURL string
}

// Dispatcher turns order lifecycle triggers into channel jobs.
type Dispatcher struct {
	queues          map[enums.NotificationChannel]Enqueuer
	direct          providers.EmailProvider
	logs            logWriter
	logg            *logger.Logger
	whatsAppEnabled bool
	trackingBaseURL string
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	queues := make(map[enums.NotificationChannel]Enqueuer, len(params.Queues))
	for channel, q := range params.Queues {
		if q != nil {
			queues[channel] = q
		}
	}
	return &Dispatcher{
		queues:          queues,
		direct:          params.DirectEmail,
		logs:            params.Logs,
		logg:            params.Logger,
		whatsAppEnabled: params.WhatsAppEnabled,
		trackingBaseURL: params.TrackingBaseURL,
	}, nil
}

// Dispatch never fails: every problem is logged and reflected as an empty job id.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger enums.NotificationTrigger, order *models.Order) DispatchResult {
	var result DispatchResult
	if order == nil {
		d.logg.Warn(d.logg.WithField(ctx, "trigger", string(trigger)), "notification dispatch without order")
		return result
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"trigger":  string(trigger),
	})

	switch trigger {
	case enums.NotificationTriggerOrderPlaced:
		d.email(ctx, &result, trigger, order)
		d.sms(ctx, &result, trigger, order)
		if d.whatsAppEnabled {
			d.whatsApp(ctx, &result, trigger, order)
		}
		d.pdf(ctx, &result, enums.DocumentTypeInvoice, order)
	case enums.NotificationTriggerPaymentSuccess, enums.NotificationTriggerPaymentFailed:
		d.email(ctx, &result, trigger, order)
		d.sms(ctx, &result, trigger, order)
	case enums.NotificationTriggerDeliveryStatusChanged:
		d.email(ctx, &result, trigger, order)
		d.sms(ctx, &result, trigger, order)
		if order.DeliveryStatus == enums.DeliveryStatusPickedUp {
			d.pdf(ctx, &result, enums.DocumentTypeDeliveryNote, order)
		}
	default:
		d.logg.Warn(ctx, "unknown notification trigger")
	}
	return result
}

func (d *Dispatcher) email(ctx context.Context, result *DispatchResult, trigger enums.NotificationTrigger, order *models.Order) {
	to := customerEmail(order)
	if to == "" {
		return
	}
	orderID := order.ID
	d.enqueue(ctx, result, enums.NotificationChannelEmail, queue.EmailPayload{
		To:       to,
		Subject:  emailSubject(trigger, order),
		Template: emailTemplateFor(trigger),
		Data:     emailData(order, d.trackingBaseURL),
		OrderID:  &orderID,
	}, &orderID)
}

func (d *Dispatcher) sms(ctx context.Context, result *DispatchResult, trigger enums.NotificationTrigger, order *models.Order) {
	orderID := order.ID
	d.enqueue(ctx, result, enums.NotificationChannelSMS, queue.SMSPayload{
		To:      order.CustomerPhone,
		Message: smsMessage(trigger, order, d.trackingBaseURL),
		OrderID: &orderID,
	}, &orderID)
}

func (d *Dispatcher) whatsApp(ctx context.Context, result *DispatchResult, trigger enums.NotificationTrigger, order *models.Order) {
	orderID := order.ID
	template, data := whatsAppTemplate(trigger, order, d.trackingBaseURL)
	d.enqueue(ctx, result, enums.NotificationChannelWhatsApp, queue.WhatsAppPayload{
		To:       order.CustomerPhone,
		Template: template,
		Data:     data,
		OrderID:  &orderID,
	}, &orderID)
}

func (d *Dispatcher) pdf(ctx context.Context, result *DispatchResult, docType enums.DocumentType, order *models.Order) {
	orderID := order.ID
	d.enqueue(ctx, result, enums.NotificationChannelPDF, queue.PDFPayload{
		Type:    docType,
		OrderID: orderID,
	}, &orderID)
}

func (d *Dispatcher) enqueue(ctx context.Context, result *DispatchResult, channel enums.NotificationChannel, payload any, orderID *uuid.UUID) {
	entry := EnqueuedJob{Channel: channel}
	defer func() { result.Jobs = append(result.Jobs, entry) }()

	logCtx := d.logg.WithField(ctx, "channel", string(channel))
	q, ok := d.queues[channel]
	if !ok {
		d.logg.Warn(logCtx, "notification queue unavailable, skipping")
		return
	}
	job, err := q.Enqueue(ctx, payload, orderID)
	if err != nil {
		d.logg.Warn(d.logg.WithField(logCtx, "error", err.Error()), "notification enqueue failed, skipping")
		return
	}
	entry.JobID = job.ID
	d.logg.Debug(d.logg.WithField(logCtx, "job_id", job.ID), "notification enqueued")
}

// SendConfirmationDirect emails the order confirmation synchronously,
// bypassing the queue. Failures are logged and recorded, never returned.
func (d *Dispatcher) SendConfirmationDirect(ctx context.Context, order *models.Order) {
	if d.direct == nil || order == nil {
		return
	}
	to := customerEmail(order)
	if to == "" {
		return
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"channel":  string(enums.NotificationChannelEmail),
		"provider": d.direct.Name(),
	})

	subject := emailSubject(enums.NotificationTriggerOrderPlaced, order)
	html, text, err := RenderEmail(TemplateOrderConfirmation, emailData(order, d.trackingBaseURL))
	if err == nil {
		_, err = d.direct.Send(ctx, providers.EmailMessage{To: to, Subject: subject, HTML: html, Text: text})
	}

	status := enums.NotificationStatusSent
	var errText *string
	if err != nil {
		status = enums.NotificationStatusFailed
		msg := err.Error()
		errText = &msg
		d.logg.Error(ctx, "direct confirmation email failed", err)
	} else {
		d.logg.Info(ctx, "direct confirmation email sent")
	}

	if d.logs == nil {
		return
	}
	provider := d.direct.Name()
	orderID := order.ID
	if logErr := d.logs.Create(ctx, &models.NotificationLog{
		Channel:   enums.NotificationChannelEmail,
		Recipient: to,
		Subject:   subject,
		Status:    status,
		Error:     errText,
		OrderID:   &orderID,
		Attempts:  1,
		Provider:  &provider,
	}); logErr != nil {
		d.logg.Error(ctx, "failed to record direct email log", logErr)
	}
}

func customerEmail(order *models.Order) string {
	if order.CustomerEmail == nil {
		return ""
	}
	return strings.TrimSpace(*order.CustomerEmail)
}

// QueuesFromSet adapts a queue set for DispatcherParams.
func QueuesFromSet(set *queue.Set) map[enums.NotificationChannel]Enqueuer {
	out := map[enums.NotificationChannel]Enqueuer{}
	if set == nil {
		return out
	}
	for _, q := range set.All() {
		out[q.Channel()] = q
	}
	return out
}
