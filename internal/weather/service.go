package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/i474232898/weather-assistant/internal/common"
)

// ComposeOptions controls what Compose attaches besides the mandatory forecast.
type ComposeOptions struct {
	WantWater   bool
	RadiusKm    float64
	MaxStations int
	// PlaceName skips reverse geocoding when the caller already knows the name.
	PlaceName string
}

// Providers bundles the adapters the Service orchestrates. Only Forecast is mandatory.
type Providers struct {
	Forecast ForecastProvider
	Water    WaterProvider
	Geocoder Geocoder
	Reverse  []ReverseGeocoder
	IP       IPLocator
}

// Service orchestrates provider adapters into aggregated contexts.
type Service struct {
	providers Providers
	catalog   Catalog
	logger    *slog.Logger
}

// NewService creates a new Service.
func NewService(providers Providers, catalog Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		providers: providers,
		catalog:   catalog,
		logger:    logger,
	}
}

// Catalog returns the station table the service ranks against.
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Compose fetches the forecast (mandatory) and, when asked, nearby water readings
// (best effort) for one coordinate. It fails only when the forecast fails.
func (s *Service) Compose(ctx context.Context, coord Coordinate, opts ComposeOptions) (AggregatedContext, error) {
	if s.providers.Forecast == nil {
		return AggregatedContext{}, fmt.Errorf("%w: no forecast provider configured", ErrUpstreamUnavailable)
	}

	placeCh := make(chan string, 1)
	if opts.PlaceName != "" {
		placeCh <- opts.PlaceName
	} else {
		go func() {
			placeCh <- s.PlaceName(ctx, coord)
		}()
	}

	snapshot, err := s.providers.Forecast.Forecast(ctx, coord)
	if err != nil {
		s.logger.Error("forecast fetch failed", "provider", s.providers.Forecast.Name(), "coord", coord.String(), "error", err)
		return AggregatedContext{}, err
	}

	agg := AggregatedContext{
		Coordinate: coord,
		Snapshot:   snapshot,
	}

	if opts.WantWater {
		agg.Water = s.NearbyWater(ctx, coord, opts.RadiusKm, opts.MaxStations)
	}
	if !agg.HasWater() {
		agg.WaterNote = NoWaterData
	}

	agg.PlaceName = <-placeCh
	return agg, nil
}

// NearbyWater queries every station in range concurrently and keeps only successful readings.
// Failures are logged and dropped; the caller decides whether an empty result matters.
func (s *Service) NearbyWater(ctx context.Context, coord Coordinate, radiusKm float64, max int) []WaterObservation {
	if s.providers.Water == nil {
		return nil
	}
	stations := s.catalog.Nearby(coord, radiusKm, max)
	if len(stations) == 0 {
		return nil
	}

	res := common.Gather(ctx, stations, 0, func(ctx context.Context, st StationDistance) (WaterObservation, error) {
		reading, err := s.providers.Water.Reading(ctx, st.StationID)
		if err != nil {
			return WaterObservation{}, err
		}
		return WaterObservation{
			Station: st,
			Reading: reading,
			Status:  ObservationSuccess,
		}, nil
	})

	for _, f := range res.Failed {
		s.logger.Warn("water reading failed", "provider", s.providers.Water.Name(), "station", f.Input.StationID, "error", f.Err)
	}
	return res.Succeeded
}

// PlaceName resolves a display name for coord, trying each reverse geocoder in order and
// falling back to the formatted coordinate.
func (s *Service) PlaceName(ctx context.Context, coord Coordinate) string {
	for _, rg := range s.providers.Reverse {
		name, err := rg.PlaceName(ctx, coord)
		if err != nil {
			s.logger.Debug("reverse geocoding failed", "provider", rg.Name(), "coord", coord.String(), "error", err)
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return fmt.Sprintf("Location (%v, %v)", coord.Lat, coord.Lon)
}

// Forecast returns the raw snapshot for coord.
func (s *Service) Forecast(ctx context.Context, coord Coordinate) (Snapshot, error) {
	if s.providers.Forecast == nil {
		return Snapshot{}, fmt.Errorf("%w: no forecast provider configured", ErrUpstreamUnavailable)
	}
	return s.providers.Forecast.Forecast(ctx, coord)
}

// WaterReading returns the raw gauge reading for one station.
func (s *Service) WaterReading(ctx context.Context, stationID string) (json.RawMessage, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return nil, fmt.Errorf("%w: station id is required", ErrInvalidInput)
	}
	if s.providers.Water == nil {
		return nil, fmt.Errorf("%w: no water provider configured", ErrUpstreamUnavailable)
	}
	return s.providers.Water.Reading(ctx, stationID)
}

// Geocode returns every candidate match for place.
func (s *Service) Geocode(ctx context.Context, place string) ([]Place, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, fmt.Errorf("%w: place is required", ErrInvalidInput)
	}
	if s.providers.Geocoder == nil {
		return nil, fmt.Errorf("%w: no geocoder configured", ErrUpstreamUnavailable)
	}
	places, err := s.providers.Geocoder.Search(ctx, place)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoResults, place)
	}
	return places, nil
}

// ResolvePlace geocodes place and returns the best match with its coordinate.
func (s *Service) ResolvePlace(ctx context.Context, place string) (Place, Coordinate, error) {
	places, err := s.Geocode(ctx, place)
	if err != nil {
		return Place{}, Coordinate{}, err
	}
	best := places[0]
	coord, err := best.Coordinate()
	if err != nil {
		return Place{}, Coordinate{}, fmt.Errorf("%w: geocoder returned %v", ErrMalformedResponse, err)
	}
	return best, coord, nil
}

// Locate geolocates an IP address (empty for the server's own address).
func (s *Service) Locate(ctx context.Context, ip string) (json.RawMessage, error) {
	if s.providers.IP == nil {
		return nil, fmt.Errorf("%w: no ip locator configured", ErrUpstreamUnavailable)
	}
	return s.providers.IP.Locate(ctx, ip)
}
