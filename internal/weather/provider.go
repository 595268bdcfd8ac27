package weather

import (
	"context"
	"encoding/json"
)

// ForecastProvider fetches the combined forecast and air-quality snapshot for a coordinate.
type ForecastProvider interface {
	Name() string
	Forecast(ctx context.Context, coord Coordinate) (Snapshot, error)
}

// WaterProvider fetches the latest gauge reading for a monitoring station.
type WaterProvider interface {
	Name() string
	Reading(ctx context.Context, stationID string) (json.RawMessage, error)
}

// Geocoder resolves free text into candidate places, best match first.
type Geocoder interface {
	Name() string
	Search(ctx context.Context, place string) ([]Place, error)
}

// ReverseGeocoder resolves a coordinate into a human readable place name.
type ReverseGeocoder interface {
	Name() string
	PlaceName(ctx context.Context, coord Coordinate) (string, error)
}

// IPLocator geolocates an IP address. An empty ip means the caller's own address.
type IPLocator interface {
	Name() string
	Locate(ctx context.Context, ip string) (json.RawMessage, error)
}
