package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-assistant/internal/weather"
)

func TestLocationIQSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("missing api key")
		}
		switch r.URL.Query().Get("q") {
		case "Mumbai":
			fmt.Fprint(w, `[{"display_name":"Mumbai, Maharashtra, India","lat":"19.0760","lon":"72.8777","address":{"country":"India","state":"Maharashtra"}}]`)
		case "Empty":
			fmt.Fprint(w, `[]`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"Unable to geocode"}`)
		}
	}))
	defer srv.Close()

	p := NewLocationIQProvider(testClientConfig(), "k").WithBaseURL(srv.URL)

	places, err := p.Search(context.Background(), "Mumbai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := weather.Place{Name: "Mumbai, Maharashtra, India", Country: "India", Admin1: "Maharashtra", Lat: 19.076, Lon: 72.8777}
	if len(places) != 1 || places[0] != want {
		t.Fatalf("unexpected places: %+v", places)
	}

	for _, q := range []string{"Empty", "Atlantis-Nonexistent-Place-931"} {
		if _, err := p.Search(context.Background(), q); !errors.Is(err, weather.ErrNoResults) {
			t.Errorf("%s: expected no results, got %v", q, err)
		}
	}

	if _, err := p.Search(context.Background(), "  "); !errors.Is(err, weather.ErrInvalidInput) {
		t.Errorf("expected invalid input for blank place, got %v", err)
	}
}

func TestLocationIQWithoutKey(t *testing.T) {
	p := NewLocationIQProvider(testClientConfig(), "")
	if _, err := p.Search(context.Background(), "Delhi"); !errors.Is(err, weather.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestUSGSReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sites") != "01646500" || q.Get("parameterCd") != "00060,00065" || q.Get("format") != "json" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"value":{"timeSeries":[]}}`)
	}))
	defer srv.Close()

	p := NewUSGSProvider(testClientConfig()).WithBaseURL(srv.URL)
	raw, err := p.Reading(context.Background(), "01646500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(raw), "timeSeries") {
		t.Fatalf("expected passthrough body, got %s", raw)
	}

	if _, err := p.Reading(context.Background(), ""); !errors.Is(err, weather.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUSGSRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	p := NewUSGSProvider(testClientConfig()).WithBaseURL(srv.URL)
	if _, err := p.Reading(context.Background(), "01646500"); !errors.Is(err, weather.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestIPAPILocate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json/10.0.0.1" {
			fmt.Fprint(w, `{"status":"fail","message":"private range"}`)
			return
		}
		fmt.Fprint(w, `{"status":"success","city":"Mumbai","lat":19.07,"lon":72.88}`)
	}))
	defer srv.Close()

	p := NewIPAPIProvider(testClientConfig()).WithBaseURL(srv.URL + "/json")
	raw, err := p.Locate(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil || got["city"] != "Mumbai" {
		t.Fatalf("unexpected body %s (%v)", raw, err)
	}

	if _, err := p.Locate(context.Background(), "10.0.0.1"); !errors.Is(err, weather.ErrNoResults) {
		t.Fatalf("expected no results for failed lookup, got %v", err)
	}
}

func TestBigDataCloudPlaceName(t *testing.T) {
	responses := []string{
		`{"city":"Mumbai","locality":"Colaba"}`,
		`{"city":"","locality":"Colaba"}`,
		`{"principalSubdivision":"Maharashtra"}`,
		`{}`,
	}
	want := []string{"Mumbai", "Colaba", "Maharashtra", ""}

	for i, body := range responses {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, body)
		}))

		p := NewBigDataCloudProvider(testClientConfig()).WithBaseURL(srv.URL)
		got, err := p.PlaceName(context.Background(), weather.Coordinate{Lat: 19, Lon: 72})
		srv.Close()

		if want[i] == "" {
			if !errors.Is(err, weather.ErrNoResults) {
				t.Errorf("case %d: expected no results, got %v", i, err)
			}
			continue
		}
		if err != nil || got != want[i] {
			t.Errorf("case %d: expected %q, got %q (%v)", i, want[i], got, err)
		}
	}
}

func TestGoogleReversePlaceName(t *testing.T) {
	p := NewGoogleReverseProvider("key", time.Second)
	p.reverse = func(loc geocoder.Location) ([]geocoder.Address, error) {
		if geocoder.ApiKey != "key" {
			t.Errorf("api key not set on library")
		}
		return []geocoder.Address{{City: "", State: "Maharashtra"}}, nil
	}

	got, err := p.PlaceName(context.Background(), weather.Coordinate{Lat: 19, Lon: 72})
	if err != nil || got != "Maharashtra" {
		t.Fatalf("expected Maharashtra, got %q (%v)", got, err)
	}

	p.reverse = func(geocoder.Location) ([]geocoder.Address, error) {
		return nil, errors.New("denied")
	}
	if _, err := p.PlaceName(context.Background(), weather.Coordinate{}); !errors.Is(err, weather.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}

	if _, err := NewGoogleReverseProvider("", time.Second).PlaceName(context.Background(), weather.Coordinate{}); err == nil {
		t.Fatal("expected error without key")
	}
}

// hangingGoogle returns a provider whose first lookup blocks until the test ends.
func hangingGoogle(t *testing.T, timeout time.Duration) *GoogleReverseProvider {
	t.Helper()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	var calls atomic.Int32
	p := NewGoogleReverseProvider("key", timeout)
	p.reverse = func(geocoder.Location) ([]geocoder.Address, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return []geocoder.Address{{City: "Pune"}}, nil
	}
	return p
}

func TestGoogleReverseTimesOut(t *testing.T) {
	p := hangingGoogle(t, 50*time.Millisecond)

	start := time.Now()
	_, err := p.PlaceName(context.Background(), weather.Coordinate{Lat: 18.52, Lon: 73.86})
	if !errors.Is(err, weather.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("lookup returned after %v, expected the deadline to apply", elapsed)
	}

	// The hung call must not hold up the next lookup.
	got, err := p.PlaceName(context.Background(), weather.Coordinate{Lat: 18.52, Lon: 73.86})
	if err != nil || got != "Pune" {
		t.Fatalf("expected Pune, got %q (%v)", got, err)
	}
}

type staticForecast struct{}

func (staticForecast) Name() string { return "static" }

func (staticForecast) Forecast(context.Context, weather.Coordinate) (weather.Snapshot, error) {
	return weather.Snapshot{Current: map[string]any{"temperature_2m": 30.0}}, nil
}

func TestComposeWithHungGoogleFallsBack(t *testing.T) {
	svc := weather.NewService(weather.Providers{
		Forecast: staticForecast{},
		Reverse:  []weather.ReverseGeocoder{hangingGoogle(t, 50*time.Millisecond)},
	}, weather.Catalog{}, nil)

	done := make(chan weather.AggregatedContext, 1)
	go func() {
		agg, err := svc.Compose(context.Background(), weather.Coordinate{Lat: 18.52, Lon: 73.86}, weather.ComposeOptions{})
		if err != nil {
			t.Errorf("compose failed: %v", err)
		}
		done <- agg
	}()

	select {
	case agg := <-done:
		if agg.PlaceName != "Location (18.52, 73.86)" {
			t.Fatalf("expected coordinate fallback name, got %q", agg.PlaceName)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("compose blocked on a hung reverse lookup")
	}
}

func TestGeminiGenerate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Mumbai: "},{"text":"light rain after 4 PM"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(testClientConfig(), "k", "test-model").WithBaseURL(srv.URL)
	text, err := p.Generate(context.Background(), "will it rain?", GenerationOptions{Temperature: 0.8, TopK: 40, TopP: 0.95, MaxOutputTokens: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Mumbai: light rain after 4 PM" {
		t.Fatalf("unexpected text %q", text)
	}
	if got.GenerationConfig.MaxOutputTokens != 500 || got.GenerationConfig.TopK != 40 || *got.GenerationConfig.Temperature != 0.8 {
		t.Fatalf("generation config not forwarded: %+v", got.GenerationConfig)
	}
	if got.Contents[0].Parts[0].Text != "will it rain?" {
		t.Fatalf("prompt not forwarded: %+v", got.Contents)
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(testClientConfig(), "k", "m").WithBaseURL(srv.URL)
	if _, err := p.Generate(context.Background(), "q", GenerationOptions{}); !errors.Is(err, weather.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "k" || !strings.HasPrefix(r.URL.Path, "/text-to-speech/voice") {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(testClientConfig(), "k", "voice").WithBaseURL(srv.URL)
	audio, err := p.Synthesize(context.Background(), "hello")
	if err != nil || string(audio) != "ID3fake" {
		t.Fatalf("unexpected result %q (%v)", audio, err)
	}

	if _, err := p.Synthesize(context.Background(), " "); !errors.Is(err, weather.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
