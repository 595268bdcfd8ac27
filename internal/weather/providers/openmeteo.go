package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-assistant/internal/weather"
)

const (
	openMeteoForecastURL   = "https://api.open-meteo.com/v1/forecast"
	openMeteoAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"

	currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,is_day,precipitation,rain,showers,snowfall,weather_code,cloud_cover,pressure_msl,surface_pressure,wind_speed_10m,wind_direction_10m,wind_gusts_10m"
	hourlyFields  = "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation_probability,precipitation,rain,showers,snowfall,weather_code,surface_pressure,cloud_cover,visibility,wind_speed_10m,wind_direction_10m,wind_gusts_10m,uv_index,uv_index_clear_sky"
	dailyFields   = "weather_code,temperature_2m_max,temperature_2m_min,apparent_temperature_max,apparent_temperature_min,sunrise,sunset,daylight_duration,sunshine_duration,uv_index_max,uv_index_clear_sky_max,precipitation_sum,rain_sum,showers_sum,snowfall_sum,precipitation_hours,precipitation_probability_max,wind_speed_10m_max,wind_gusts_10m_max,wind_direction_10m_dominant"
	airFields     = "pm10,pm2_5,carbon_monoxide,nitrogen_dioxide,sulphur_dioxide,ozone,us_aqi"
)

// OpenMeteoProvider implements weather.ForecastProvider for Open-Meteo. One Forecast call
// issues the forecast and air-quality requests concurrently and merges them.
type OpenMeteoProvider struct {
	name          string
	forecastURL   string
	airQualityURL string
	httpCfg       HTTPClientConfig
	circuit       *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(cfg HTTPClientConfig) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:          "openmeteo",
		forecastURL:   openMeteoForecastURL,
		airQualityURL: openMeteoAirQualityURL,
		httpCfg:       cfg,
		circuit:       newCircuitBreaker("openmeteo"),
	}
}

// WithBaseURLs points the provider at different endpoints (tests, self-hosted instances).
func (p *OpenMeteoProvider) WithBaseURLs(forecastURL, airQualityURL string) *OpenMeteoProvider {
	p.forecastURL = forecastURL
	p.airQualityURL = airQualityURL
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context, coord weather.Coordinate) (weather.Snapshot, error) {
	var (
		snapshot weather.Snapshot
		air      weather.AirQuality
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values := coordValues(coord)
		values.Set("timezone", "auto")
		values.Set("current", currentFields)
		values.Set("hourly", hourlyFields)
		values.Set("daily", dailyFields)
		return p.getJSON(gctx, p.forecastURL, values, &snapshot)
	})
	g.Go(func() error {
		values := coordValues(coord)
		values.Set("hourly", airFields)
		return p.getJSON(gctx, p.airQualityURL, values, &air)
	})
	if err := g.Wait(); err != nil {
		return weather.Snapshot{}, err
	}

	snapshot.AirQuality = air
	if err := snapshot.Validate(); err != nil {
		return weather.Snapshot{}, malformed(p.name, err)
	}
	return snapshot, nil
}

func (p *OpenMeteoProvider) getJSON(ctx context.Context, base string, values url.Values, out any) error {
	body, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", base, values.Encode()), nil)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return malformed(p.name, err)
	}
	return nil
}

func coordValues(coord weather.Coordinate) url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	return values
}
