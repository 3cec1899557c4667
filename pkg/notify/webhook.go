package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/unklstewy/overhead/pkg/adsb"
)

// WebhookNotifier POSTs each notification as JSON. 5xx responses and
// transport errors are retried with backoff; 4xx responses are final.
type WebhookNotifier struct {
	url    string
	client *http.Client
	retry  adsb.RetryConfig
}

// NewWebhookNotifier creates a WebhookNotifier for url.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	retry := adsb.DefaultRetryConfig()
	retry.MaxRetries = 3
	retry.Logger = logger
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// SetRetry overrides the retry policy.
func (w *WebhookNotifier) SetRetry(cfg adsb.RetryConfig) {
	w.retry = cfg
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	return adsb.RetryWithBackoff(ctx, w.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return &adsb.StatusError{StatusCode: http.StatusBadRequest, Body: err.Error()}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &adsb.StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	})
}
