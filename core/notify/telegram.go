package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Escalator interface {
	Escalate(ctx context.Context, n Notification) error
}

type TelegramEscalator struct {
	client *resty.Client
	token  string
	chatID string
}

func NewTelegramEscalator(baseURL, token, chatID string, timeout time.Duration) *TelegramEscalator {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &TelegramEscalator{client: client, token: token, chatID: chatID}
}

func (t *TelegramEscalator) Escalate(ctx context.Context, n Notification) error {
	if strings.TrimSpace(t.token) == "" || strings.TrimSpace(t.chatID) == "" {
		return errors.New("telegram token or chat id missing")
	}
	lines := []string{n.Title}
	if n.Message != "" {
		lines = append(lines, n.Message)
	}
	if n.Link != "" {
		lines = append(lines, n.Link)
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id": t.chatID,
			"text":    strings.Join(lines, "\n"),
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("telegram api status %d", resp.StatusCode())
	}
	return nil
}
