package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// HTTPMailer posts mail to a JSON relay endpoint.
type HTTPMailer struct {
	client *resty.Client
	from   string
}

func NewHTTPMailer(endpoint, token, from string, timeout time.Duration) *HTTPMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if strings.TrimSpace(token) != "" {
		client.SetAuthToken(token)
	}
	return &HTTPMailer{client: client, from: from}
}

func (m *HTTPMailer) Send(ctx context.Context, mail Mail) error {
	if strings.TrimSpace(mail.To) == "" {
		return errors.New("mail recipient missing")
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"from":    m.from,
			"to":      mail.To,
			"subject": mail.Subject,
			"text":    mail.Text,
		}).
		Post("/send")
	if err != nil {
		return fmt.Errorf("mail relay: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail relay status %d", resp.StatusCode())
	}
	return nil
}

// NopMailer is used when no relay is configured.
type NopMailer struct{}

func (NopMailer) Send(context.Context, Mail) error { return nil }
