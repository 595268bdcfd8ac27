package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// maxBodyBytes caps how much of an upstream response we are willing to buffer.
const maxBodyBytes = 16 << 20

// Observer receives one callback per outbound request. Outcome is "ok", "client_error",
// "server_error", "rate_limited", "transport_error" or "circuit_open".
type Observer interface {
	ObserveUpstream(provider, outcome string, elapsed time.Duration)
}

// HTTPClientConfig bundles the HTTP client and the optional guards shared by every adapter.
type HTTPClientConfig struct {
	Client   *http.Client
	Limiter  *rate.Limiter
	Observer Observer
}

// StatusError is returned for a non-2xx upstream response. It unwraps to
// weather.ErrUpstreamUnavailable so callers that do not care about the code can use errors.Is.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Provider, e.Code)
}

func (e *StatusError) Unwrap() error {
	return weather.ErrUpstreamUnavailable
}

// clientError reports whether err is a 4xx other than 429; those do not trip the breaker.
func clientError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		IsSuccessful: func(err error) bool {
			return err == nil || clientError(err)
		},
	})
}

// doRequest executes one request through the rate limiter and circuit breaker and returns the
// full response body. It never retries: every failure is surfaced to the caller immediately,
// classified against the weather error taxonomy.
func doRequest(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: %s: http client not configured", weather.ErrUpstreamUnavailable, provider)
	}

	if cfg.Limiter != nil {
		if err := cfg.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limit wait: %v", weather.ErrUpstreamUnavailable, provider, err)
		}
	}

	req, err := buildRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: build request: %v", weather.ErrInvalidInput, provider, err)
	}

	start := time.Now()
	outcome := "ok"
	defer func() {
		if cfg.Observer != nil {
			cfg.Observer.ObserveUpstream(provider, outcome, time.Since(start))
		}
	}()

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			outcome = "transport_error"
			return nil, fmt.Errorf("%w: %s: %v", weather.ErrUpstreamUnavailable, provider, execErr)
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			outcome = "transport_error"
			return nil, fmt.Errorf("%w: %s: read body: %v", weather.ErrUpstreamUnavailable, provider, readErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			outcome = "rate_limited"
		case resp.StatusCode >= 500:
			outcome = "server_error"
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			outcome = "client_error"
		default:
			return body, nil
		}
		return nil, &StatusError{Provider: provider, Code: resp.StatusCode, Body: truncate(string(body), 512)}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "circuit_open"
			return nil, fmt.Errorf("%w: %s: circuit breaker open: %v", weather.ErrUpstreamUnavailable, provider, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected result type from circuit breaker", weather.ErrMalformedResponse, provider)
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func malformed(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", weather.ErrMalformedResponse, provider, err)
}
