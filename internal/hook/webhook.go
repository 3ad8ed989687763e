package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

// WebhookCaller posts the (event, response) pair to a configured hook-level
// webhook endpoint, optionally parsing a `can_block` endpoint's JSON body
// back into a HookResponse override. Grounded on internal/pipeline's
// WebhookSender (same cenkalti/backoff/v5 retry shape) but distinct from it
// because a hook webhook's response body can itself carry a decision,
// where a pipeline webhook is fire-and-forget.
type WebhookCaller struct {
	client *http.Client
}

// NewWebhookCaller constructs a caller whose HTTP client times out each
// attempt after 10s; cfg.Timeout can shorten that per endpoint but not
// extend it.
func NewWebhookCaller() *WebhookCaller {
	return &WebhookCaller{client: &http.Client{Timeout: 10 * time.Second}}
}

type webhookPayload struct {
	Event    *event.HookEvent    `json:"event"`
	Response *event.HookResponse `json:"response"`
}

type webhookDecision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// Send posts payload built from evt/resp to cfg.URL, retrying 5xx/timeout
// responses up to cfg.RetryCount times with cfg.RetryDelay between
// attempts. 4xx responses are terminal. When cfg.CanBlock is set and the
// endpoint returns a parseable {"decision":...} body, Send returns a
// HookResponse override for the caller to merge in; otherwise it returns
// nil with no error.
func (c *WebhookCaller) Send(ctx context.Context, cfg *workflowdef.WebhookConfig, evt *event.HookEvent, resp *event.HookResponse) (*event.HookResponse, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, nil
	}

	body, err := json.Marshal(webhookPayload{Event: evt, Response: resp})
	if err != nil {
		return nil, fmt.Errorf("marshaling webhook payload: %w", err)
	}

	timeout := parseDurationOr(cfg.Timeout, 10*time.Second)
	delay := parseDurationOr(cfg.RetryDelay, time.Second)
	attempts := cfg.RetryCount
	if attempts <= 0 {
		attempts = 1
	}

	var respBody []byte
	op := func() (struct{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		method := cfg.Method
		if method == "" {
			method = http.MethodPost
		}
		req, err := http.NewRequestWithContext(reqCtx, method, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		httpResp, err := c.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer httpResp.Body.Close()

		respBody, _ = io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
			return struct{}{}, backoff.Permanent(fmt.Errorf("webhook %s returned %d", cfg.URL, httpResp.StatusCode))
		}
		if httpResp.StatusCode >= 500 {
			return struct{}{}, fmt.Errorf("webhook %s returned %d", cfg.URL, httpResp.StatusCode)
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(attempts)),
	)
	if err != nil {
		return nil, err
	}

	if !cfg.CanBlock || len(respBody) == 0 {
		return nil, nil
	}

	var decoded webhookDecision
	if err := json.Unmarshal(respBody, &decoded); err != nil || decoded.Decision == "" {
		return nil, nil
	}
	return &event.HookResponse{Decision: event.Decision(decoded.Decision), Reason: decoded.Reason}, nil
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

// StaticWebhooks is the simplest WebhookConfigs implementation: a fixed
// map built once from daemon configuration (see internal/config), with no
// per-session or per-workflow variation.
type StaticWebhooks map[event.HookEventType][]*workflowdef.WebhookConfig

// ForEventType implements WebhookConfigs.
func (s StaticWebhooks) ForEventType(t event.HookEventType) []*workflowdef.WebhookConfig {
	return s[t]
}
