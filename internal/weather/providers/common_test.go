package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-assistant/internal/weather"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveUpstream(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestDoRequestClassifiesStatus(t *testing.T) {
	cases := []struct {
		status  int
		outcome string
	}{
		{http.StatusTooManyRequests, "rate_limited"},
		{http.StatusServiceUnavailable, "server_error"},
		{http.StatusNotFound, "client_error"},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))

		obs := &recordingObserver{}
		cfg := testClientConfig()
		cfg.Observer = obs
		_, err := doRequest(context.Background(), "test", cfg, newCircuitBreaker("test"), func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		})
		srv.Close()

		var se *StatusError
		if !errors.As(err, &se) || se.Code != tc.status {
			t.Errorf("status %d: expected StatusError, got %v", tc.status, err)
		}
		if !errors.Is(err, weather.ErrUpstreamUnavailable) {
			t.Errorf("status %d: expected ErrUpstreamUnavailable in chain", tc.status)
		}
		if len(obs.outcomes) != 1 || obs.outcomes[0] != tc.outcome {
			t.Errorf("status %d: expected outcome %s, got %v", tc.status, tc.outcome, obs.outcomes)
		}
	}
}

func TestDoRequestDoesNotRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := doRequest(context.Background(), "test", testClientConfig(), newCircuitBreaker("test"), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestCircuitOpensAfterServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := newCircuitBreaker("test")
	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}
	// gobreaker's default ReadyToTrip opens after more than 5 consecutive failures.
	for i := 0; i < 6; i++ {
		_, _ = doRequest(context.Background(), "test", testClientConfig(), cb, build)
	}

	obs := &recordingObserver{}
	cfg := testClientConfig()
	cfg.Observer = obs
	_, err := doRequest(context.Background(), "test", cfg, cb, build)
	if !errors.Is(err, weather.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "circuit_open" {
		t.Fatalf("expected circuit_open outcome, got %v", obs.outcomes)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cb := newCircuitBreaker("test")
	for i := 0; i < 10; i++ {
		_, err := doRequest(context.Background(), "test", testClientConfig(), cb, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		})
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("call %d: expected StatusError, got %v", i, err)
		}
	}
}

func TestDoRequestWithoutClient(t *testing.T) {
	_, err := doRequest(context.Background(), "test", HTTPClientConfig{}, newCircuitBreaker("test"), nil)
	if !errors.Is(err, weather.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}
