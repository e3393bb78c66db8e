// Package external implements the tenant log source over HTTP.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"logforge/internal/batch"
	"logforge/internal/ingest/core/domain"
	"logforge/internal/ingest/core/ports"
	"logforge/internal/ingest/core/retry"
	tenantdomain "logforge/internal/tenants/core/domain"
)

const (
	apiKeyHeader = "X-API-KEY"
	maxErrorBody = 512
)

var ErrInvalidResponse = errors.New("invalid log source response")

// StatusError reports a non-2xx answer from a tenant endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("log source returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("log source returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	http *http.Client
}

// NewClient builds a client whose dial phase is bounded by connectTimeout.
// The overall deadline of a call comes from the caller's context.
func NewClient(connectTimeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &Client{http: &http.Client{Transport: transport}}
}

// NewClientWith wraps an existing http.Client.
func NewClientWith(c *http.Client) *Client {
	return &Client{http: c}
}

var _ ports.LogSourcePort = (*Client)(nil)

type logItem struct {
	OccurredAt *time.Time      `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Fetch issues GET {base}/logs?from=&to= and decodes the JSON array answer.
func (c *Client) Fetch(ctx context.Context, tenant tenantdomain.Tenant, window batch.Window) ([]domain.FetchedLog, error) {
	endpoint, err := logsURL(tenant.ExternalAPIBaseURL, window)
	if err != nil {
		return nil, retry.Terminal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set(apiKeyHeader, tenant.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if statusErr.Retryable() {
			return nil, retry.Transient(statusErr)
		}
		return nil, retry.Terminal(statusErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return decodeLogs(body)
}

func logsURL(base string, window batch.Window) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", errors.New("tenant has no external api base url")
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/logs")
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("from", window.From.UTC().Format(time.RFC3339))
	q.Set("to", window.To.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeLogs(body []byte) ([]domain.FetchedLog, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []domain.FetchedLog{}, nil
	}

	var items []logItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, retry.Terminal(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}

	logs := make([]domain.FetchedLog, 0, len(items))
	for i, it := range items {
		if it.OccurredAt == nil {
			return nil, retry.Terminal(fmt.Errorf("%w: item %d has no occurredAt", ErrInvalidResponse, i))
		}
		logs = append(logs, domain.FetchedLog{
			OccurredAt: it.OccurredAt.UTC(),
			Payload:    payloadText(it.Payload),
		})
	}
	return logs, nil
}

// payloadText unwraps a JSON string payload and keeps any other JSON value as
// its raw text.
func payloadText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}
