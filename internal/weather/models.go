package weather

import (
	"encoding/json"
	"fmt"
	"math"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionFog     Condition = "fog"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
)

// Coordinate is a validated latitude/longitude pair. Use NewCoordinate to build one.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewCoordinate validates the ranges and returns an ErrInvalidInput wrapped error otherwise.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Coordinate{}, fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidInput, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidInput, lon)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Series is a column-oriented time series: field name -> values aligned to the "time" field.
type Series map[string][]any

// Len returns the number of timestamps in the series.
func (s Series) Len() int {
	return len(s["time"])
}

// Validate checks that every field has exactly one value per timestamp.
func (s Series) Validate() error {
	if len(s) == 0 {
		return nil
	}
	if _, ok := s["time"]; !ok {
		return fmt.Errorf("series has no time field")
	}
	n := s.Len()
	for field, values := range s {
		if len(values) != n {
			return fmt.Errorf("field %q has %d values, expected %d", field, len(values), n)
		}
	}
	return nil
}

// AirQuality is the air-quality leg of a forecast.
type AirQuality struct {
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	HourlyUnits map[string]string `json:"hourly_units,omitempty"`
	Hourly      Series            `json:"hourly"`
}

// Snapshot is the combined forecast and air quality for one coordinate at one point in time.
type Snapshot struct {
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Timezone     string            `json:"timezone,omitempty"`
	Elevation    float64           `json:"elevation"`
	CurrentUnits map[string]string `json:"current_units,omitempty"`
	Current      map[string]any    `json:"current"`
	HourlyUnits  map[string]string `json:"hourly_units,omitempty"`
	Hourly       Series            `json:"hourly"`
	DailyUnits   map[string]string `json:"daily_units,omitempty"`
	Daily        Series            `json:"daily"`
	AirQuality   AirQuality        `json:"air_quality"`
}

// Validate enforces that each cadence shares one timestamp sequence.
func (s Snapshot) Validate() error {
	if err := s.Hourly.Validate(); err != nil {
		return fmt.Errorf("hourly: %w", err)
	}
	if err := s.Daily.Validate(); err != nil {
		return fmt.Errorf("daily: %w", err)
	}
	if err := s.AirQuality.Hourly.Validate(); err != nil {
		return fmt.Errorf("air_quality hourly: %w", err)
	}
	return nil
}

// Condition maps the current Open-Meteo weather code to a normalized condition.
func (s Snapshot) Condition() Condition {
	code, ok := s.Current["weather_code"].(float64)
	if !ok {
		return ConditionUnknown
	}
	return ConditionFromCode(int(code))
}

// ConditionFromCode maps WMO weather codes as used by Open-Meteo (simplified).
func ConditionFromCode(code int) Condition {
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionFog
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return ConditionSnow
	case code >= 95:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}

// Place is a single geocoding match.
type Place struct {
	Name    string  `json:"name"`
	Country string  `json:"country,omitempty"`
	Admin1  string  `json:"admin1,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Coordinate returns the validated coordinate of the place.
func (p Place) Coordinate() (Coordinate, error) {
	return NewCoordinate(p.Lat, p.Lon)
}

// Station is a fixed water-monitoring point from the catalog.
type Station struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// StationDistance is a catalog station annotated with its distance from a query coordinate.
type StationDistance struct {
	StationID  string     `json:"stationId"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
	DistanceKm float64    `json:"distanceKm"`
}

// ObservationStatus is the outcome of one water-observation fetch.
type ObservationStatus string

const (
	ObservationSuccess ObservationStatus = "success"
	ObservationFailed  ObservationStatus = "failed"
)

// WaterObservation is the result of querying one nearby station.
type WaterObservation struct {
	Station StationDistance   `json:"station"`
	Reading json.RawMessage   `json:"data"`
	Status  ObservationStatus `json:"status"`
	Error   string            `json:"error,omitempty"`
}

// NoWaterData is the placeholder used when no station produced a reading.
const NoWaterData = "No nearby water monitoring data available"

// AggregatedContext is everything an answer prompt needs for one request.
type AggregatedContext struct {
	PlaceName  string             `json:"location"`
	Coordinate Coordinate         `json:"coordinate"`
	Snapshot   Snapshot           `json:"weather"`
	Water      []WaterObservation `json:"water,omitempty"`
	WaterNote  string             `json:"waterNote,omitempty"`
}

// HasWater reports whether at least one station reading is attached.
func (a AggregatedContext) HasWater() bool {
	return len(a.Water) > 0
}
