package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/angelmondragon/duka-backend/pkg/config"
)

const twilioName = "twilio"

// twilioMessages is the slice of the Twilio REST API the provider calls.
type twilioMessages interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// Twilio sends SMS through the Programmable Messaging API.
type Twilio struct {
	api  twilioMessages
	from string
}

var _ MessageProvider = (*Twilio)(nil)

func NewTwilio(cfg config.TwilioConfig) (*Twilio, error) {
	switch {
	case strings.TrimSpace(cfg.AccountSID) == "":
		return nil, errors.New("twilio account sid is required")
	case strings.TrimSpace(cfg.AuthToken) == "":
		return nil, errors.New("twilio auth token is required")
	case strings.TrimSpace(cfg.FromNumber) == "":
		return nil, errors.New("twilio from number is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	client.SetTimeout(defaultHTTPTimeout)
	if region := strings.TrimSpace(cfg.Region); region != "" {
		client.SetRegion(region)
	}
	if edge := strings.TrimSpace(cfg.Edge); edge != "" {
		client.SetEdge(edge)
	}
	return newTwilio(client.Api, cfg.FromNumber), nil
}

func newTwilio(api twilioMessages, from string) *Twilio {
	return &Twilio{api: api, from: from}
}

func (t *Twilio) Name() string { return twilioName }

// Send posts one message. The SDK call takes no context, so a cancelled
// context is only honoured before the request starts.
func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("%w: sms recipient is empty", ErrRejected)
	}
	if err := ctx.Err(); err != nil {
		return "", transportError(twilioName, err)
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return "", twilioError(err)
	}
	if msg == nil || msg.Sid == nil || *msg.Sid == "" {
		return UnknownReference, nil
	}
	return *msg.Sid, nil
}

// SendTemplate has no SMS-side template store, so the parameters are flattened
// into the body in key order.
func (t *Twilio) SendTemplate(ctx context.Context, to, template string, data map[string]string) (string, error) {
	return t.Send(ctx, to, flattenTemplate(template, data))
}

func twilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return classifyStatus(twilioName, restErr.Status, fmt.Sprintf("%d %s", restErr.Code, restErr.Message))
	}
	return transportError(twilioName, err)
}

func flattenTemplate(template string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, template)
	for _, k := range keys {
		lines = append(lines, k+": "+data[k])
	}
	return strings.Join(lines, "\n")
}
