package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/internal/notifications/providers"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	"github.com/angelmondragon/duka-backend/pkg/phone"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

// EmailHandler renders the named template and hands it to the email provider.
type EmailHandler struct {
	provider providers.EmailProvider
}

func NewEmailHandler(provider providers.EmailProvider) (*EmailHandler, error) {
	if provider == nil {
		return nil, errors.New("email provider required")
	}
	return &EmailHandler{provider: provider}, nil
}

func (h *EmailHandler) Handle(ctx context.Context, job *queue.Job) (Delivery, error) {
	delivery := Delivery{Provider: h.provider.Name()}
	var payload queue.EmailPayload
	if err := job.Decode(&payload); err != nil {
		return delivery, err
	}
	delivery.Recipient = strings.TrimSpace(payload.To)
	delivery.Subject = payload.Subject
	if delivery.Recipient == "" {
		return delivery, queue.Terminal(errors.New("email job has no recipient"))
	}

	html, text, err := notifications.RenderEmail(payload.Template, payload.Data)
	if err != nil {
		return delivery, queue.Terminal(err)
	}
	ref, err := h.provider.Send(ctx, providers.EmailMessage{
		To:      delivery.Recipient,
		Subject: payload.Subject,
		HTML:    html,
		Text:    text,
	})
	delivery.Reference = ref
	return delivery, err
}

// SMSHandler sends plain-text messages to E.164 numbers.
type SMSHandler struct {
	provider providers.MessageProvider
	phones   phone.Normalizer
}

func NewSMSHandler(provider providers.MessageProvider, phones phone.Normalizer) (*SMSHandler, error) {
	if provider == nil {
		return nil, errors.New("sms provider required")
	}
	return &SMSHandler{provider: provider, phones: phones}, nil
}

func (h *SMSHandler) Handle(ctx context.Context, job *queue.Job) (Delivery, error) {
	delivery := Delivery{Provider: h.provider.Name()}
	var payload queue.SMSPayload
	if err := job.Decode(&payload); err != nil {
		return delivery, err
	}
	delivery.Recipient = payload.To
	delivery.Subject = subjectFor(enums.NotificationChannelSMS, orderLabel(payload.OrderID))

	to, err := h.phones.ForSMS(payload.To)
	if err != nil {
		return delivery, queue.Terminal(err)
	}
	delivery.Recipient = to
	if strings.TrimSpace(payload.Message) == "" {
		return delivery, queue.Terminal(errors.New("sms job has an empty message"))
	}
	ref, err := h.provider.Send(ctx, to, payload.Message)
	delivery.Reference = ref
	return delivery, err
}

// WhatsAppHandler sends approved templates with named parameters.
type WhatsAppHandler struct {
	provider providers.MessageProvider
	phones   phone.Normalizer
}

func NewWhatsAppHandler(provider providers.MessageProvider, phones phone.Normalizer) (*WhatsAppHandler, error) {
	if provider == nil {
		return nil, errors.New("whatsapp provider required")
	}
	return &WhatsAppHandler{provider: provider, phones: phones}, nil
}

func (h *WhatsAppHandler) Handle(ctx context.Context, job *queue.Job) (Delivery, error) {
	delivery := Delivery{Provider: h.provider.Name()}
	var payload queue.WhatsAppPayload
	if err := job.Decode(&payload); err != nil {
		return delivery, err
	}
	delivery.Recipient = payload.To
	delivery.Subject = subjectFor(enums.NotificationChannelWhatsApp, payload.Template)

	to, err := h.phones.ForWhatsApp(payload.To)
	if err != nil {
		return delivery, queue.Terminal(err)
	}
	delivery.Recipient = to
	if strings.TrimSpace(payload.Template) == "" {
		return delivery, queue.Terminal(errors.New("whatsapp job has no template"))
	}
	ref, err := h.provider.SendTemplate(ctx, to, payload.Template, payload.Data)
	delivery.Reference = ref
	return delivery, err
}

type documentGenerator interface {
	Generate(ctx context.Context, docType enums.DocumentType, orderID uuid.UUID) (string, error)
}

// PDFHandler renders and stores order documents.
type PDFHandler struct {
	documents documentGenerator
}

func NewPDFHandler(documents documentGenerator) (*PDFHandler, error) {
	if documents == nil {
		return nil, errors.New("document generator required")
	}
	return &PDFHandler{documents: documents}, nil
}

func (h *PDFHandler) Handle(ctx context.Context, job *queue.Job) (Delivery, error) {
	delivery := Delivery{Provider: "gcs"}
	var payload queue.PDFPayload
	if err := job.Decode(&payload); err != nil {
		return delivery, err
	}
	delivery.Recipient = payload.OrderID.String()
	delivery.Subject = subjectFor(enums.NotificationChannelPDF, string(payload.Type))
	if !payload.Type.IsValid() {
		return delivery, queue.Terminal(fmt.Errorf("unknown document type %q", payload.Type))
	}
	if payload.OrderID == uuid.Nil {
		return delivery, queue.Terminal(errors.New("pdf job has no order id"))
	}
	url, err := h.documents.Generate(ctx, payload.Type, payload.OrderID)
	delivery.Reference = url
	return delivery, err
}

func orderLabel(orderID *uuid.UUID) string {
	if orderID == nil {
		return ""
	}
	return "order " + orderID.String()
}
