// Package providers holds the outbound transports used by the notification
// workers. Workers only see the EmailProvider and MessageProvider interfaces;
// the concrete implementation is picked by name from configuration.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
)

// ErrRejected marks a permanent refusal by the provider (bad recipient,
// unknown template, auth failure). Retrying will not help.
var ErrRejected = errors.New("provider rejected message")

// UnknownReference is returned when a provider accepted the message but the
// response carried no usable message id.
const UnknownReference = "unknown"

// EmailMessage is a fully rendered email.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type EmailProvider interface {
	Name() string
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// MessageProvider delivers SMS or WhatsApp messages. SendTemplate uses a
// provider-side template with named parameters.
type MessageProvider interface {
	Name() string
	Send(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, template string, data map[string]string) (string, error)
}

// checkResponse maps non-2xx responses onto retryable dependency errors
// (429, 5xx) or ErrRejected (other 4xx).
func checkResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return classifyStatus(provider, resp.StatusCode, string(b))
}

func classifyStatus(provider string, status int, detail string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	detail = strings.TrimSpace(detail)
	if len(detail) > 2048 {
		detail = detail[:2048]
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("%s returned %d", provider, status)).
			WithDetails(map[string]any{"body": detail})
	}
	return fmt.Errorf("%w: %s returned %d: %s", ErrRejected, provider, status, detail)
}

func transportError(provider string, err error) error {
	return pkgerrors.Dependency(provider, err)
}
