package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/threedeality/storefront-api/internal/resilience"
)

// ErrSenderNotConfigured indicates the email provider key is missing.
var ErrSenderNotConfigured = errors.New("notify: email sender not configured")

// EmailSender is the transactional email contract.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// HTTPEmailSender posts messages to a Resend-style email API: bearer auth,
// one JSON document per message.
type HTTPEmailSender struct {
	BaseURL string
	APIKey  string
	From    string
	HTTP    resilience.HTTPClient
}

// Send delivers one message. Non-2xx provider answers come back as errors so
// the queue can retry.
func (s *HTTPEmailSender) Send(ctx context.Context, to, subject, html string) error {
	if s == nil || strings.TrimSpace(s.APIKey) == "" {
		return ErrSenderNotConfigured
	}
	base := s.BaseURL
	if base == "" {
		base = "https://api.resend.com"
	}
	payload, err := json.Marshal(map[string]any{
		"from":    s.From,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("notify: email provider status %d: %s", resp.StatusCode, body)
}

// InMemorySender records messages for tests.
type InMemorySender struct {
	Outbox []Email
}

// Email is one captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Send records the message.
func (m *InMemorySender) Send(_ context.Context, to, subject, html string) error {
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}
