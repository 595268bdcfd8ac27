package weather

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

const (
	DefaultStationRadiusKm = 50.0
	FloodStationRadiusKm   = 100.0
	DefaultMaxStations     = 3
)

//go:embed stations.json
var defaultCatalog []byte

// Catalog is the static table of water-monitoring stations.
type Catalog []Station

// DefaultCatalog returns the built-in station table.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded station catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a station table from a JSON file. An empty path yields the built-in table.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a JSON station table.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode station catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(c))
	for i, st := range c {
		if st.ID == "" {
			return nil, fmt.Errorf("station %d: missing id", i)
		}
		if _, dup := seen[st.ID]; dup {
			return nil, fmt.Errorf("station %s: duplicate id", st.ID)
		}
		seen[st.ID] = struct{}{}
		if _, err := NewCoordinate(st.Lat, st.Lon); err != nil {
			return nil, fmt.Errorf("station %s: %w", st.ID, err)
		}
	}
	return c, nil
}

// Haversine returns the great-circle distance in kilometres between two coordinates.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Nearby ranks catalog stations by distance from coord and returns at most max of them
// within radiusKm. Nothing in range yields an empty slice, not an error.
func (c Catalog) Nearby(coord Coordinate, radiusKm float64, max int) []StationDistance {
	if radiusKm <= 0 {
		radiusKm = DefaultStationRadiusKm
	}
	if max <= 0 {
		max = DefaultMaxStations
	}

	out := make([]StationDistance, 0, len(c))
	for _, st := range c {
		pos := Coordinate{Lat: st.Lat, Lon: st.Lon}
		d := Haversine(coord, pos)
		if d > radiusKm {
			continue
		}
		out = append(out, StationDistance{
			StationID:  st.ID,
			Name:       st.Name,
			Coordinate: pos,
			DistanceKm: d,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})

	if len(out) > max {
		out = out[:max]
	}
	return out
}
