package enums

import "fmt"

// NotificationChannel is one outbound medium with its own queue and worker pool.
type NotificationChannel string

const (
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelSMS      NotificationChannel = "sms"
	NotificationChannelWhatsApp NotificationChannel = "whatsapp"
	NotificationChannelPDF      NotificationChannel = "pdf"
)

var validNotificationChannels = []NotificationChannel{
	NotificationChannelEmail,
	NotificationChannelSMS,
	NotificationChannelWhatsApp,
	NotificationChannelPDF,
}

// NotificationChannels returns every known channel in a stable order.
func NotificationChannels() []NotificationChannel {
	out := make([]NotificationChannel, len(validNotificationChannels))
	copy(out, validNotificationChannels)
	return out
}

// String implements fmt.Stringer.
func (c NotificationChannel) String() string {
	return string(c)
}

// IsValid reports whether the value is a known NotificationChannel.
func (c NotificationChannel) IsValid() bool {
	for _, candidate := range validNotificationChannels {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseNotificationChannel converts raw input into a NotificationChannel.
func ParseNotificationChannel(value string) (NotificationChannel, error) {
	for _, candidate := range validNotificationChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification channel %q", value)
}

// NotificationStatus is the outcome recorded in the notification log.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// IsValid reports whether the value is a known NotificationStatus.
func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationStatusPending, NotificationStatusSent, NotificationStatusFailed:
		return true
	}
	return false
}

// NotificationTrigger is an order lifecycle event that can fan out into jobs.
type NotificationTrigger string

const (
	NotificationTriggerOrderPlaced           NotificationTrigger = "order_placed"
	NotificationTriggerPaymentSuccess        NotificationTrigger = "payment_success"
	NotificationTriggerPaymentFailed         NotificationTrigger = "payment_failed"
	NotificationTriggerDeliveryStatusChanged NotificationTrigger = "delivery_status_changed"
)

var validNotificationTriggers = []NotificationTrigger{
	NotificationTriggerOrderPlaced,
	NotificationTriggerPaymentSuccess,
	NotificationTriggerPaymentFailed,
	NotificationTriggerDeliveryStatusChanged,
}

// IsValid reports whether the value is a known NotificationTrigger.
func (t NotificationTrigger) IsValid() bool {
	for _, candidate := range validNotificationTriggers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseNotificationTrigger converts raw input into a NotificationTrigger.
func ParseNotificationTrigger(value string) (NotificationTrigger, error) {
	for _, candidate := range validNotificationTriggers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification trigger %q", value)
}

// DocumentType selects which document the PDF channel renders.
type DocumentType string

const (
	DocumentTypeInvoice      DocumentType = "invoice"
	DocumentTypeDeliveryNote DocumentType = "delivery_note"
)

// IsValid reports whether the value is a known DocumentType.
func (d DocumentType) IsValid() bool {
	return d == DocumentTypeInvoice || d == DocumentTypeDeliveryNote
}

// ParseDocumentType converts raw input into a DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	d := DocumentType(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid document type %q", value)
	}
	return d, nil
}
