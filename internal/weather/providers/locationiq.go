package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// LocationIQProvider implements weather.Geocoder using LocationIQ forward geocoding.
type LocationIQProvider struct {
	name    string
	apiKey  string
	baseURL string
	limit   int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewLocationIQProvider(cfg HTTPClientConfig, apiKey string) *LocationIQProvider {
	return &LocationIQProvider{
		name:    "locationiq",
		apiKey:  apiKey,
		baseURL: "https://us1.locationiq.com/v1/search",
		limit:   15,
		httpCfg: cfg,
		circuit: newCircuitBreaker("locationiq"),
	}
}

func (p *LocationIQProvider) WithBaseURL(u string) *LocationIQProvider {
	p.baseURL = u
	return p
}

func (p *LocationIQProvider) Name() string {
	return p.name
}

func (p *LocationIQProvider) Search(ctx context.Context, place string) ([]weather.Place, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, fmt.Errorf("%w: place is required", weather.ErrInvalidInput)
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: locationiq api key is not configured", weather.ErrUpstreamUnavailable)
	}

	body, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", place)
		values.Set("format", "json")
		values.Set("addressdetails", "1")
		values.Set("limit", strconv.Itoa(p.limit))
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	})
	if err != nil {
		// LocationIQ answers 404 "Unable to geocode" for an empty result set.
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %q", weather.ErrNoResults, place)
		}
		return nil, err
	}

	var payload []struct {
		DisplayName string `json:"display_name"`
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		Address     struct {
			Country string `json:"country"`
			State   string `json:"state"`
		} `json:"address"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed(p.name, err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %q", weather.ErrNoResults, place)
	}

	places := make([]weather.Place, 0, len(payload))
	for _, r := range payload {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			return nil, malformed(p.name, fmt.Errorf("bad coordinates %q,%q", r.Lat, r.Lon))
		}
		places = append(places, weather.Place{
			Name:    r.DisplayName,
			Country: r.Address.Country,
			Admin1:  r.Address.State,
			Lat:     lat,
			Lon:     lon,
		})
	}
	return places, nil
}
