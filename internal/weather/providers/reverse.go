package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// BigDataCloudProvider implements weather.ReverseGeocoder with the keyless client endpoint.
type BigDataCloudProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewBigDataCloudProvider(cfg HTTPClientConfig) *BigDataCloudProvider {
	return &BigDataCloudProvider{
		name:    "bigdatacloud",
		baseURL: "https://api.bigdatacloud.net/data/reverse-geocode-client",
		httpCfg: cfg,
		circuit: newCircuitBreaker("bigdatacloud"),
	}
}

func (p *BigDataCloudProvider) WithBaseURL(u string) *BigDataCloudProvider {
	p.baseURL = u
	return p
}

func (p *BigDataCloudProvider) Name() string {
	return p.name
}

func (p *BigDataCloudProvider) PlaceName(ctx context.Context, coord weather.Coordinate) (string, error) {
	body, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
		values.Set("localityLanguage", "en")
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		City                 string `json:"city"`
		Locality             string `json:"locality"`
		PrincipalSubdivision string `json:"principalSubdivision"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", malformed(p.name, err)
	}
	for _, name := range []string{payload.City, payload.Locality, payload.PrincipalSubdivision} {
		if strings.TrimSpace(name) != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no place name for %s", weather.ErrNoResults, coord)
}

const defaultGoogleTimeout = 10 * time.Second

// googleKeyMu guards writes to the package-level key the geocoder library reads.
var googleKeyMu sync.Mutex

// GoogleReverseProvider implements weather.ReverseGeocoder with the Google Geocoding API.
type GoogleReverseProvider struct {
	name    string
	apiKey  string
	timeout time.Duration
	circuit *gobreaker.CircuitBreaker
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

// NewGoogleReverseProvider bounds every lookup by timeout; the library's own client has none.
func NewGoogleReverseProvider(apiKey string, timeout time.Duration) *GoogleReverseProvider {
	if timeout <= 0 {
		timeout = defaultGoogleTimeout
	}
	return &GoogleReverseProvider{
		name:    "google",
		apiKey:  apiKey,
		timeout: timeout,
		circuit: newCircuitBreaker("google-geocoder"),
		reverse: geocoder.GeocodingReverse,
	}
}

func (p *GoogleReverseProvider) Name() string {
	return p.name
}

func (p *GoogleReverseProvider) PlaceName(ctx context.Context, coord weather.Coordinate) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: google geocoder api key is not configured", weather.ErrUpstreamUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		addrs []geocoder.Address
		err   error
	}
	done := make(chan result, 1)

	// The library has no context support. The call runs aside and is abandoned on deadline;
	// the lock only covers the key swap so a hung lookup does not stall later ones.
	go func() {
		out, err := p.circuit.Execute(func() (interface{}, error) {
			googleKeyMu.Lock()
			if geocoder.ApiKey != p.apiKey {
				geocoder.ApiKey = p.apiKey
			}
			googleKeyMu.Unlock()
			return p.reverse(geocoder.Location{Latitude: coord.Lat, Longitude: coord.Lon})
		})
		if err != nil {
			done <- result{err: err}
			return
		}
		addrs, _ := out.([]geocoder.Address)
		done <- result{addrs: addrs}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: google geocoder: %v", weather.ErrUpstreamUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: google geocoder: %v", weather.ErrUpstreamUnavailable, r.err)
		}
		for _, a := range r.addrs {
			for _, name := range []string{a.City, a.State, a.Country} {
				if strings.TrimSpace(name) != "" {
					return name, nil
				}
			}
		}
		return "", fmt.Errorf("%w: no place name for %s", weather.ErrNoResults, coord)
	}
}
