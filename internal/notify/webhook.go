package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// WebhookSink шлёт уведомления во внешний чат-сервис:
// POST {base}/channels/{channel}/messages с JSON-телом Message.
type WebhookSink struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewWebhookSink(baseURL, token string) *WebhookSink {
	if baseURL == "" {
		baseURL = "http://localhost:9400"
	}
	return &WebhookSink{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *WebhookSink) Send(ctx context.Context, channel string, msg Message) error {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/channels/%s/messages", url.PathEscape(channel))

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook http %d", resp.StatusCode)
	}
	return nil
}
