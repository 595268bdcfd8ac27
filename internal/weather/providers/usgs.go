package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// USGSProvider implements weather.WaterProvider against the NWIS instantaneous values service.
// Readings are streamflow (00060, cfs) and gage height (00065, ft); US stations only.
type USGSProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewUSGSProvider(cfg HTTPClientConfig) *USGSProvider {
	return &USGSProvider{
		name:    "usgs",
		baseURL: "https://waterservices.usgs.gov/nwis/iv/",
		httpCfg: cfg,
		circuit: newCircuitBreaker("usgs"),
	}
}

func (p *USGSProvider) WithBaseURL(u string) *USGSProvider {
	p.baseURL = u
	return p
}

func (p *USGSProvider) Name() string {
	return p.name
}

func (p *USGSProvider) Reading(ctx context.Context, stationID string) (json.RawMessage, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return nil, fmt.Errorf("%w: station id is required", weather.ErrInvalidInput)
	}

	body, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("format", "json")
		values.Set("sites", stationID)
		values.Set("parameterCd", "00060,00065")
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, malformed(p.name, fmt.Errorf("response for site %s is not JSON", stationID))
	}
	return json.RawMessage(body), nil
}
