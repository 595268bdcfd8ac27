package weather

import "errors"

// Failure taxonomy shared by every provider adapter. Adapters wrap these with %w
// so callers can classify with errors.Is.
var (
	// ErrInvalidInput is a client-caused failure; never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable covers network errors, timeouts and non-2xx responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNoResults means the request was valid but the provider had nothing to return.
	ErrNoResults = errors.New("no results")
	// ErrMalformedResponse means the provider answered with something we could not use.
	ErrMalformedResponse = errors.New("malformed upstream response")
)
