package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// IPAPIProvider implements weather.IPLocator using ip-api.com.
type IPAPIProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewIPAPIProvider(cfg HTTPClientConfig) *IPAPIProvider {
	return &IPAPIProvider{
		name:    "ipapi",
		baseURL: "http://ip-api.com/json",
		httpCfg: cfg,
		circuit: newCircuitBreaker("ipapi"),
	}
}

func (p *IPAPIProvider) WithBaseURL(u string) *IPAPIProvider {
	p.baseURL = u
	return p
}

func (p *IPAPIProvider) Name() string {
	return p.name
}

func (p *IPAPIProvider) Locate(ctx context.Context, ip string) (json.RawMessage, error) {
	body, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		u := p.baseURL
		if ip != "" {
			u += "/" + url.PathEscape(ip)
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}

	var status struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, malformed(p.name, err)
	}
	if status.Status != "success" {
		return nil, fmt.Errorf("%w: ip-api: %s", weather.ErrNoResults, status.Message)
	}
	return json.RawMessage(body), nil
}
