package providers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/duka-backend/pkg/config"
)

const (
	NameMock     = "mock"
	NameNoop     = "noop"
	NameSendgrid = sendgridName
	NameTwilio   = twilioName
	NameMeta     = metaName

	defaultHTTPTimeout = 10 * time.Second
)

// Settings carries the credentials every real provider might need. HTTPClient
// only applies to providers without a vendor SDK.
type Settings struct {
	Sendgrid     config.SendgridConfig
	Twilio       config.TwilioConfig
	MetaWhatsApp config.MetaWhatsAppConfig
	HTTPClient   *http.Client
}

// SettingsFromConfig picks the provider sections out of the service config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Sendgrid:     cfg.Sendgrid,
		Twilio:       cfg.Twilio,
		MetaWhatsApp: cfg.MetaWhatsApp,
	}
}

func NewEmailProvider(name string, s Settings) (EmailProvider, error) {
	switch normalize(name) {
	case NameMock:
		return NewMockEmail(), nil
	case NameNoop:
		return NoopEmail{}, nil
	case NameSendgrid:
		return NewSendgrid(s.Sendgrid)
	default:
		return nil, fmt.Errorf("unknown email provider %q", name)
	}
}

func NewSMSProvider(name string, s Settings) (MessageProvider, error) {
	switch normalize(name) {
	case NameMock:
		return NewMockMessenger(), nil
	case NameNoop:
		return NoopMessenger{}, nil
	case NameTwilio:
		return NewTwilio(s.Twilio)
	default:
		return nil, fmt.Errorf("unknown sms provider %q", name)
	}
}

func NewWhatsAppProvider(name string, s Settings) (MessageProvider, error) {
	switch normalize(name) {
	case NameMock:
		return NewMockMessenger(), nil
	case NameNoop:
		return NoopMessenger{}, nil
	case NameMeta:
		return NewMetaWhatsApp(s.MetaWhatsApp, s.HTTPClient)
	default:
		return nil, fmt.Errorf("unknown whatsapp provider %q", name)
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
