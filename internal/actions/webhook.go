package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultWebhookTimeout  = 30 * time.Second
)

// WebhookConfig bounds the outbound webhook handler.
type WebhookConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

// WebhookOut is the WEBHOOK_OUT handler: sends an HTTP request described
// by the node's config and exposes the parsed response and status code to
// downstream formulas.
type WebhookOut struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookOut creates a WEBHOOK_OUT handler.
func NewWebhookOut(cfg WebhookConfig) *WebhookOut {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultWebhookTimeout
	}
	return &WebhookOut{
		config: cfg,
		client: &http.Client{},
	}
}

func (w *WebhookOut) Type() schema.ActionType { return schema.ActionWebhookOut }

func (w *WebhookOut) Validate(config map[string]any) error {
	rawURL := stringParam(config, "url", "")
	if rawURL == "" {
		return schema.NewError(schema.ErrCodeValidation, "WEBHOOK_OUT: missing required config 'url'")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "WEBHOOK_OUT: invalid url %q", rawURL)
	}
	switch method := strings.ToUpper(stringParam(config, "method", "")); method {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
	case "":
		return schema.NewError(schema.ErrCodeValidation, "WEBHOOK_OUT: missing required config 'method'")
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "WEBHOOK_OUT: unsupported method %q", method)
	}
	return nil
}

func (w *WebhookOut) Execute(ctx context.Context, input Input) (map[string]any, error) {
	config := input.Config
	if config == nil {
		config = map[string]any{}
	}
	if err := w.Validate(config); err != nil {
		return nil, err
	}

	method := strings.ToUpper(stringParam(config, "method", "GET"))
	rawURL := stringParam(config, "url", "")

	timeout := w.config.DefaultTimeout
	if ts := stringParam(config, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil && d > 0 {
			timeout = d
		}
	}

	var bodyReader io.Reader
	contentType := ""
	if rawBody, ok := config["body"]; ok && rawBody != nil {
		b, err := json.Marshal(rawBody)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExternalAction, "WEBHOOK_OUT: failed to marshal body as JSON").WithCause(err)
		}
		bodyReader = strings.NewReader(string(b))
		contentType = "application/json"
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExternalAction, "WEBHOOK_OUT: failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if hdrs, ok := config["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "WEBHOOK_OUT: request to %s timed out after %s", rawURL, timeout).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExternalAction, "WEBHOOK_OUT: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, w.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExternalAction, "WEBHOOK_OUT: failed to read response body").WithCause(err)
	}

	// JSON responses become traversable objects; everything else stays text.
	var parsedBody any
	switch {
	case len(bodyBytes) == 0:
		parsedBody = nil
	case strings.Contains(resp.Header.Get("Content-Type"), "application/json"):
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsedBody = jsonBody
		} else {
			parsedBody = string(bodyBytes)
		}
	default:
		parsedBody = string(bodyBytes)
	}

	return map[string]any{
		"response": parsedBody,
		"status":   float64(resp.StatusCode),
	}, nil
}
