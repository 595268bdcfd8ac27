package weather

import (
	"math"
	"testing"
)

func TestHaversineSymmetricAndZero(t *testing.T) {
	pairs := [][2]Coordinate{
		{{Lat: 19.07, Lon: 72.88}, {Lat: 28.61, Lon: 77.21}},
		{{Lat: 39.0003, Lon: -77.2528}, {Lat: 45.5152, Lon: -122.6784}},
		{{Lat: -33.86, Lon: 151.2}, {Lat: 51.5, Lon: -0.12}},
		{{Lat: 90, Lon: 0}, {Lat: -90, Lon: 0}},
		{{Lat: 0, Lon: 179.9}, {Lat: 0, Lon: -179.9}},
	}
	for _, p := range pairs {
		ab := Haversine(p[0], p[1])
		ba := Haversine(p[1], p[0])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("distance not symmetric for %v: %f vs %f", p, ab, ba)
		}
		if d := Haversine(p[0], p[0]); d != 0 {
			t.Errorf("expected zero self distance for %v, got %f", p[0], d)
		}
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Mumbai to Delhi is roughly 1150 km.
	d := Haversine(Coordinate{Lat: 19.076, Lon: 72.8777}, Coordinate{Lat: 28.6139, Lon: 77.209})
	if d < 1100 || d > 1200 {
		t.Fatalf("expected ~1150km, got %f", d)
	}
}

func TestNearbySortedWithinRadius(t *testing.T) {
	catalog := Catalog{
		{ID: "far", Name: "Far", Lat: 39.5, Lon: -77.2528},
		{ID: "near", Name: "Near", Lat: 39.01, Lon: -77.2528},
		{ID: "mid", Name: "Mid", Lat: 39.2, Lon: -77.2528},
		{ID: "out", Name: "Out", Lat: 45.0, Lon: -77.2528},
	}
	origin := Coordinate{Lat: 39.0, Lon: -77.2528}

	got := catalog.Nearby(origin, 100, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 stations in range, got %d", len(got))
	}
	wantOrder := []string{"near", "mid", "far"}
	for i, id := range wantOrder {
		if got[i].StationID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].StationID)
		}
		if got[i].DistanceKm > 100 {
			t.Errorf("station %s outside radius: %f", got[i].StationID, got[i].DistanceKm)
		}
		if i > 0 && got[i].DistanceKm < got[i-1].DistanceKm {
			t.Errorf("distances not non-decreasing at %d", i)
		}
	}
}

func TestNearbyTruncatesAndDefaults(t *testing.T) {
	catalog := DefaultCatalog()
	// Great Falls gauge itself.
	origin := Coordinate{Lat: 39.0003, Lon: -77.2528}

	got := catalog.Nearby(origin, 0, 0)
	if len(got) != 1 || got[0].StationID != "01646500" {
		t.Fatalf("expected only the Potomac station, got %+v", got)
	}

	wide := catalog.Nearby(origin, 20000, 2)
	if len(wide) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(wide))
	}
}

func TestNearbyEmptyWhenNothingInRange(t *testing.T) {
	got := DefaultCatalog().Nearby(Coordinate{Lat: 19.07, Lon: 72.88}, DefaultStationRadiusKm, DefaultMaxStations)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestParseCatalogRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"missing id":   `[{"name":"x","lat":1,"lon":1}]`,
		"duplicate id": `[{"id":"a","lat":1,"lon":1},{"id":"a","lat":2,"lon":2}]`,
		"bad lat":      `[{"id":"a","lat":91,"lon":1}]`,
		"not json":     `{`,
	}
	for name, raw := range cases {
		if _, err := ParseCatalog([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadCatalogDefault(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c) != 5 {
		t.Fatalf("expected 5 built-in stations, got %d", len(c))
	}
}
