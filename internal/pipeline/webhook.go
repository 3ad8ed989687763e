package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gobby-dev/gobby/internal/workflowdef"
)

// WebhookSender posts pipeline lifecycle notifications to the URL a
// pipeline definition configures for on_approval_pending/on_complete/
// on_failure, retrying transient failures after a constant cfg.RetryDelay
// (1s when unset or unparseable).
type WebhookSender struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSender builds a sender using client, or http.DefaultClient if
// nil.
func NewWebhookSender(client *http.Client, logger *slog.Logger) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{client: client, logger: logger}
}

// Send posts payload to cfg's URL, retrying up to cfg.RetryCount times. A
// delivery failure is logged and swallowed unless cfg.CanBlock is set, in
// which case the final error is returned so the caller can treat it as a
// hard failure of the step that triggered it.
func (w *WebhookSender) Send(ctx context.Context, cfg *workflowdef.WebhookConfig, payload map[string]interface{}) error {
	if cfg == nil || cfg.URL == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	attempts := cfg.RetryCount
	if attempts < 1 {
		attempts = 1
	}
	delay := parseDurationOr(cfg.RetryDelay, time.Second)

	op := func() (struct{}, error) {
		if err := w.post(ctx, cfg, body); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(attempts)),
	)
	if err != nil {
		w.logger.Warn("webhook delivery failed", "url", cfg.URL, "error", err)
		if cfg.CanBlock {
			return err
		}
	}
	return nil
}

func (w *WebhookSender) post(ctx context.Context, cfg *workflowdef.WebhookConfig, body []byte) error {
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
	return nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
