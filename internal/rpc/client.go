package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// CustomTransport adds API key authentication and client side rate limiting
// to every JSON-RPC request sent to the node
type CustomTransport struct {
	Base        http.RoundTripper
	ApiKey      string
	RateLimiter *rate.Limiter
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.RateLimiter != nil {
		if err := t.RateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	// RoundTrippers must not mutate the caller's request
	req = req.Clone(req.Context())
	req.Header.Set("Content-Type", "application/json")
	if t.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.ApiKey)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewHTTPClient builds the HTTP client used to talk to a chain node. A
// non-positive rateLimit disables limiting.
func NewHTTPClient(apiKey string, rateLimit float64, timeout time.Duration) *http.Client {
	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), 1)
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &CustomTransport{
			Base:        http.DefaultTransport,
			ApiKey:      apiKey,
			RateLimiter: limiter,
		},
	}
}

// Retry runs fn once and then up to maxRetries more times while retryable
// reports the error as transient, sleeping delay between attempts. It stops
// early when ctx is done.
func Retry(ctx context.Context, maxRetries int, delay time.Duration, logger *zerolog.Logger, fn func(ctx context.Context) error, retryable func(error) bool) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		if logger != nil {
			logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Dur("retryIn", delay).
				Msg("Remote call failed, retrying")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
