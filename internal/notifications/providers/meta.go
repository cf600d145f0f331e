package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/angelmondragon/duka-backend/pkg/config"
)

const metaName = "meta"

// MetaWhatsApp sends WhatsApp messages through the Cloud API.
type MetaWhatsApp struct {
	httpClient    *http.Client
	baseURL       string
	apiVersion    string
	phoneNumberID string
	accessToken   string
	language      string
}

var _ MessageProvider = (*MetaWhatsApp)(nil)

func NewMetaWhatsApp(cfg config.MetaWhatsAppConfig, httpClient *http.Client) (*MetaWhatsApp, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("meta whatsapp access token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("meta whatsapp phone number id is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	return &MetaWhatsApp{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:    cfg.APIVersion,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		language:      language,
	}, nil
}

func (m *MetaWhatsApp) Name() string { return metaName }

type metaText struct {
	Body string `json:"body"`
}

type metaParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type metaComponent struct {
	Type       string          `json:"type"`
	Parameters []metaParameter `json:"parameters"`
}

type metaLanguage struct {
	Code string `json:"code"`
}

type metaTemplate struct {
	Name       string          `json:"name"`
	Language   metaLanguage    `json:"language"`
	Components []metaComponent `json:"components,omitempty"`
}

type metaRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *metaText     `json:"text,omitempty"`
	Template         *metaTemplate `json:"template,omitempty"`
}

func (m *MetaWhatsApp) Send(ctx context.Context, to, body string) (string, error) {
	return m.post(ctx, metaRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &metaText{Body: body},
	})
}

// SendTemplate passes data as positional body parameters ordered by key, so
// templates must number their placeholders in the same key order.
func (m *MetaWhatsApp) SendTemplate(ctx context.Context, to, template string, data map[string]string) (string, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := make([]metaParameter, 0, len(keys))
	for _, k := range keys {
		params = append(params, metaParameter{Type: "text", Text: data[k]})
	}
	tpl := &metaTemplate{Name: template, Language: metaLanguage{Code: m.language}}
	if len(params) > 0 {
		tpl.Components = []metaComponent{{Type: "body", Parameters: params}}
	}
	return m.post(ctx, metaRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tpl,
	})
}

func (m *MetaWhatsApp) post(ctx context.Context, body metaRequest) (string, error) {
	if strings.TrimSpace(body.To) == "" {
		return "", fmt.Errorf("%w: whatsapp recipient is empty", ErrRejected)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages", m.baseURL, m.apiVersion, url.PathEscape(m.phoneNumberID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", transportError(metaName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(metaName, resp); err != nil {
		return "", err
	}
	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Messages) == 0 {
		return UnknownReference, nil
	}
	return out.Messages[0].ID, nil
}
