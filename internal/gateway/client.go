// Package gateway adapts the third-party messaging API behind a single
// boolean-success contract. The upstream service does not publish a
// stable API shape, so delivery is a probe over an ordered list of
// candidate endpoint/payload pairs, each tried once per call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sapliy/subscription-notifier/pkg/observability"
)

const defaultTimeout = 30 * time.Second

// Config holds the gateway connection settings.
type Config struct {
	BaseURL   string
	APIKey    string
	SessionID int
	Timeout   time.Duration
}

// Result is the outcome of one Send call. Transport failures, non-2xx
// responses and ambiguous 200s are all reported here, never raised.
type Result struct {
	Success     bool
	RawResponse json.RawMessage
	Endpoint    string
	Error       string
}

// Client delivers one message to one normalized address.
type Client struct {
	cfg  Config
	http *http.Client
	log  *observability.Logger
}

func NewClient(cfg Config, log *observability.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
}

// candidate is one known shape of the upstream API: a path plus the
// payload layout that path expects.
type candidate struct {
	path    string
	payload func(to, text string, sessionID int) map[string]any
}

var candidates = []candidate{
	{
		path: "/api/send-message",
		payload: func(to, text string, sessionID int) map[string]any {
			body := map[string]any{"to": "+" + to, "message": text}
			if sessionID != 0 {
				body["session_id"] = sessionID
			}
			return body
		},
	},
	{
		path: "/v1/messages",
		payload: func(to, text string, sessionID int) map[string]any {
			return map[string]any{"session": sessionID, "to": to, "text": text}
		},
	},
	{
		path: "/api/send",
		payload: func(to, text string, sessionID int) map[string]any {
			return map[string]any{"session_id": sessionID, "phone": to, "message": text}
		},
	},
}

// successCheck is one heuristic for recognizing a successful 200 body.
// The upstream contract is unstable, so success detection is an explicit
// union of indicators evaluated in order.
type successCheck struct {
	name  string
	match func(body map[string]any, raw []byte) bool
}

var successChecks = []successCheck{
	{"success_flag", func(body map[string]any, _ []byte) bool {
		v, ok := body["success"].(bool)
		return ok && v
	}},
	{"status_string", func(body map[string]any, _ []byte) bool {
		v, ok := body["status"].(string)
		return ok && v == "success"
	}},
	{"message_id_field", func(body map[string]any, _ []byte) bool {
		_, hasMessageID := body["message_id"]
		_, hasID := body["id"]
		return hasMessageID || hasID
	}},
	{"sent_substring", func(_ map[string]any, raw []byte) bool {
		return bytes.Contains(bytes.ToLower(raw), []byte("sent"))
	}},
}

// matchSuccess returns the name of the first matching heuristic, or ""
// when none match.
func matchSuccess(body map[string]any, raw []byte) string {
	for _, check := range successChecks {
		if check.match(body, raw) {
			return check.name
		}
	}
	return ""
}

// Send attempts delivery of text to the normalized address. Each
// candidate shape is tried at most once; the first success wins and its
// raw response body is returned unmodified. When every candidate fails,
// the last recorded error is returned in the Result.
func (c *Client) Send(ctx context.Context, to, text string) *Result {
	var lastErr string

	for _, cand := range candidates {
		url := strings.TrimRight(c.cfg.BaseURL, "/") + cand.path
		c.log.Info("attempting gateway send", "endpoint", url, "to", to)

		raw, status, err := c.post(ctx, url, cand.payload(to, text, c.cfg.SessionID))
		if err != nil {
			lastErr = fmt.Sprintf("request to %s failed: %v", url, err)
			c.log.Warn("gateway request failed", "endpoint", url, "error", err)
			continue
		}

		if status != http.StatusOK {
			lastErr = fmt.Sprintf("%s returned HTTP %d: %s", url, status, upstreamMessage(raw))
			c.log.Warn("gateway returned non-200", "endpoint", url, "status", status)
			continue
		}

		var body map[string]any
		// A malformed body is tolerated; the raw-substring heuristic still applies.
		_ = json.Unmarshal(raw, &body)

		if indicator := matchSuccess(body, raw); indicator != "" {
			c.log.Info("gateway send succeeded", "endpoint", url, "indicator", indicator)
			return &Result{Success: true, RawResponse: raw, Endpoint: url}
		}

		lastErr = fmt.Sprintf("%s returned 200 without a success indicator: %s", url, upstreamMessage(raw))
		c.log.Warn("gateway response matched no success heuristic", "endpoint", url)
	}

	return &Result{
		Success: false,
		Error:   fmt.Sprintf("all gateway endpoints failed, last error: %s", lastErr),
	}
}

func (c *Client) post(ctx context.Context, url string, payload map[string]any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// upstreamMessage extracts a human-readable error from an upstream body,
// falling back to the truncated raw text.
func upstreamMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := string(raw)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
