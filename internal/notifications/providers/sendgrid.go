package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/duka-backend/pkg/config"
)

const (
	sendgridName     = "sendgrid"
	sendgridEndpoint = "/v3/mail/send"
)

// Sendgrid sends email through the v3 mail/send API.
type Sendgrid struct {
	apiKey string
	host   string
	from   string
}

var _ EmailProvider = (*Sendgrid)(nil)

func NewSendgrid(cfg config.SendgridConfig) (*Sendgrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &Sendgrid{
		apiKey: cfg.APIKey,
		host:   strings.TrimRight(cfg.BaseURL, "/"),
		from:   cfg.DefaultFrom,
	}, nil
}

func (s *Sendgrid) Name() string { return sendgridName }

func (s *Sendgrid) Send(ctx context.Context, msg EmailMessage) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", fmt.Errorf("%w: email recipient is empty", ErrRejected)
	}

	// a request per send; the SDK client mutates its body in place
	req := sendgrid.GetRequest(s.apiKey, sendgridEndpoint, s.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(s.message(msg))

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return "", transportError(sendgridName, err)
	}
	if err := classifyStatus(sendgridName, resp.StatusCode, resp.Body); err != nil {
		return "", err
	}
	id := http.Header(resp.Headers).Get("X-Message-Id")
	if id == "" {
		return UnknownReference, nil
	}
	return id, nil
}

func (s *Sendgrid) message(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("", s.from))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	m.AddPersonalizations(p)

	// text/plain must precede text/html
	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	return m
}
