package providers

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage is one call recorded by MockMessenger.
type SentMessage struct {
	To       string
	Body     string
	Template string
	Data     map[string]string
}

// failSwitch lets tests make a mock fail until reset.
type failSwitch struct {
	mu  sync.Mutex
	err error
}

// FailWith makes every following call return err. Passing nil restores success.
func (f *failSwitch) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// MockEmail records emails instead of sending them.
type MockEmail struct {
	failSwitch
	sent []EmailMessage
}

var _ EmailProvider = (*MockEmail)(nil)

func NewMockEmail() *MockEmail { return &MockEmail{} }

func (m *MockEmail) Name() string { return "mock" }

func (m *MockEmail) Send(_ context.Context, msg EmailMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("mock-email-%d", len(m.sent)), nil
}

func (m *MockEmail) Sent() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.sent...)
}

// MockMessenger records SMS / WhatsApp messages instead of sending them.
type MockMessenger struct {
	failSwitch
	sent []SentMessage
}

var _ MessageProvider = (*MockMessenger)(nil)

func NewMockMessenger() *MockMessenger { return &MockMessenger{} }

func (m *MockMessenger) Name() string { return "mock" }

func (m *MockMessenger) Send(_ context.Context, to, body string) (string, error) {
	return m.record(SentMessage{To: to, Body: body})
}

func (m *MockMessenger) SendTemplate(_ context.Context, to, template string, data map[string]string) (string, error) {
	return m.record(SentMessage{To: to, Template: template, Data: data})
}

func (m *MockMessenger) record(msg SentMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("mock-msg-%d", len(m.sent)), nil
}

func (m *MockMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// NoopEmail accepts and discards every email.
type NoopEmail struct{}

func (NoopEmail) Name() string { return "noop" }

func (NoopEmail) Send(context.Context, EmailMessage) (string, error) { return "", nil }

// NoopMessenger accepts and discards every message.
type NoopMessenger struct{}

func (NoopMessenger) Name() string { return "noop" }

func (NoopMessenger) Send(context.Context, string, string) (string, error) { return "", nil }

func (NoopMessenger) SendTemplate(context.Context, string, string, map[string]string) (string, error) {
	return "", nil
}
