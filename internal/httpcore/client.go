// Package httpcore is the single outbound HTTP surface every tool handler
// uses (via pkg/envelope.TransportClient), so rate limiting, retries, and
// header/credential plumbing live in one place instead of being
// reimplemented per handler. Grounded on the teacher's
// internal/mcp/transport_http.go request/response handling, generalized
// from an MCP client transport into a general-purpose outbound REST client
// fronted by internal/ratelimit.
package httpcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corebridge/platform-core/internal/apperr"
	"github.com/corebridge/platform-core/internal/ratelimit"
)

const userAgent = "corebridge/1.0"

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int // number of *additional* attempts after the first
	RetryBase   time.Duration
	BearerToken string
}

func (c Config) normalized() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	return c
}

// Client is the rate-limited outbound HTTP client. It satisfies
// pkg/envelope.TransportClient.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
}

// New builds a Client. limiter is shared across every Client a deployment
// constructs, so the admin/write/read tiers are genuinely global budgets,
// not per-tool ones.
func New(cfg Config, limiter *ratelimit.Limiter) *Client {
	cfg = cfg.normalized()
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// classifyTier maps a request to one of the rate limiter's admission tiers
// (spec.md §4.2's tier set), grounded on how the teacher's gateway
// classifies inbound requests by path prefix before applying policy.
func classifyTier(method, path string) string {
	lower := strings.ToLower(path)
	for _, prefix := range []string{"/admin/", "/auth/", "/tenant/"} {
		if strings.Contains(lower, prefix) {
			return ratelimit.TierAdmin
		}
	}
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ratelimit.TierRead
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return ratelimit.TierWrite
	default:
		return ratelimit.TierDefault
	}
}

// Do issues one request against path (joined to BaseURL), rate-limited by
// its classified tier, with body marshaled as JSON and the response
// unmarshaled into out (if non-nil). It satisfies
// pkg/envelope.TransportClient.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	tier := classifyTier(method, path)

	var lastErr error
	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBase * time.Duration(1<<uint(attempt-1))
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		ok, err := c.limiter.Consume(ctx, tier, 1)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.RateLimitExceeded(tier)
		}

		err = c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		appErr, isApp := apperr.As(err)
		if !isApp || (appErr.Kind != apperr.KindBackend) {
			return err
		}
		// Only backend-kind errors (unavailable/timeout) are retried.
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	url := c.cfg.BaseURL + path

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.InvalidParams(err.Error())
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return apperr.InvalidParams(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.BackendTimeout("http", err)
		}
		return apperr.BackendUnavailable("http", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.BackendUnavailable("http", err)
	}

	if resp.StatusCode >= 500 {
		return apperr.BackendUnavailable("http", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode >= 400 {
		return apperr.InvalidParams(fmt.Sprintf("status %d: %s", resp.StatusCode, respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperr.BackendUnavailable("http", err)
		}
	}
	return nil
}
