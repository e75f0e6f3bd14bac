package notify

import (
	"context"
	"encoding/json"
	"net/http"
)

// WebhookSender posta o evento da pesquisa no endpoint de automação.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{url: url, client: newHTTPClient()}
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.url == "" {
		return ErrChannelDisabled
	}

	headers := map[string]string{}
	if msg.IdempotencyKey != "" {
		headers["X-Idempotency-Key"] = msg.IdempotencyKey
	}

	var payload any = msg.Data
	if len(msg.Data) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return postJSON(ctx, s.client, "webhook", s.url, headers, payload)
}
