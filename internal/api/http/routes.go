package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/speech"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
)

var validate = validator.New()

// WeatherService is the data side of the API. *weather.Service implements it.
type WeatherService interface {
	Forecast(ctx context.Context, coord weather.Coordinate) (weather.Snapshot, error)
	WaterReading(ctx context.Context, stationID string) (json.RawMessage, error)
	Geocode(ctx context.Context, place string) ([]weather.Place, error)
	ResolvePlace(ctx context.Context, place string) (weather.Place, weather.Coordinate, error)
	Locate(ctx context.Context, ip string) (json.RawMessage, error)
	Catalog() weather.Catalog
}

// AssistantService answers questions. *assistant.Service implements it.
type AssistantService interface {
	Ask(ctx context.Context, req assistant.AskRequest) (assistant.AskResult, error)
	Insights(ctx context.Context, question string, target assistant.Target) (string, error)
	Activity(ctx context.Context, activity string, target assistant.Target) (string, error)
	Compare(ctx context.Context, question string, target assistant.Target) (string, error)
	FloodRisk(ctx context.Context, coord weather.Coordinate) (string, error)
}

// SessionStore is the read and delete side of the session store.
type SessionStore interface {
	Delete(id string) bool
	List() []store.ChatSession
	Len() int
}

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Dependencies are the services the handlers delegate to. Speech and Relay may be nil;
// their routes then answer 503.
type Dependencies struct {
	Weather   WeatherService
	Assistant AssistantService
	Sessions  SessionStore
	Speech    Synthesizer
	Relay     *speech.Relay

	StationRadiusKm float64
	MaxStations     int

	Logger *slog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handlers{deps: deps}

	api := app.Group("/api")

	api.Get("/weather", h.forecast)
	api.Get("/water/nearby", h.nearbyStations)
	api.Get("/water/:stationId", h.waterReading)
	api.Get("/geocode", h.geocode)
	api.Get("/location", h.locate)

	ai := api.Group("/ai")
	ai.Post("/", h.ask)
	ai.Post("/insights", h.insights)
	ai.Post("/activity", h.activity)
	ai.Post("/compare", h.compare)
	ai.Post("/flood-risk", h.floodRisk)
	ai.Delete("/session/:sessionId", h.deleteSession)
	ai.Get("/sessions", h.listSessions)

	api.Post("/tts", h.textToSpeech)
	api.Post("/full-flow", h.fullFlow)

	registerSpeech(app, h)
}

type handlers struct {
	deps Dependencies
}

func (h *handlers) forecast(c *fiber.Ctx) error {
	q, err := parseLocationQuery(c)
	if err != nil {
		return err
	}

	coord, err := h.coordinateFor(c.UserContext(), q)
	if err != nil {
		return err
	}

	snapshot, err := h.deps.Weather.Forecast(c.UserContext(), coord)
	if err != nil {
		return err
	}
	return c.JSON(snapshot)
}

func (h *handlers) waterReading(c *fiber.Ctx) error {
	reading, err := h.deps.Weather.WaterReading(c.UserContext(), c.Params("stationId"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(reading)
}

// nearbyQuery holds query parameters for the nearby stations endpoint.
type nearbyQuery struct {
	Lat    float64 `validate:"gte=-90,lte=90"`
	Lon    float64 `validate:"gte=-180,lte=180"`
	Radius float64 `validate:"gte=0,lte=20000"`
	Limit  int     `validate:"gte=0,lte=50"`
}

func (h *handlers) nearbyStations(c *fiber.Ctx) error {
	q, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	if q.Lat == nil || q.Lon == nil {
		return fmt.Errorf("%w: lat and lon are required", weather.ErrInvalidInput)
	}

	req := nearbyQuery{Lat: *q.Lat, Lon: *q.Lon, Radius: h.deps.StationRadiusKm, Limit: h.deps.MaxStations}
	if v := c.Query("radius"); v != "" {
		if req.Radius, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("%w: radius must be a number", weather.ErrInvalidInput)
		}
	}
	if v := c.Query("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: limit must be an integer", weather.ErrInvalidInput)
		}
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	coord, err := weather.NewCoordinate(req.Lat, req.Lon)
	if err != nil {
		return err
	}
	return c.JSON(h.deps.Weather.Catalog().Nearby(coord, req.Radius, req.Limit))
}

// geocodeQuery holds query parameters for the geocoding endpoint.
type geocodeQuery struct {
	Place string `validate:"required,max=200"`
}

func (h *handlers) geocode(c *fiber.Ctx) error {
	q := geocodeQuery{Place: strings.TrimSpace(c.Query("place"))}
	if err := validate.Struct(q); err != nil {
		return err
	}

	places, err := h.deps.Weather.Geocode(c.UserContext(), q.Place)
	if err != nil {
		return err
	}
	return c.JSON(places)
}

func (h *handlers) locate(c *fiber.Ctx) error {
	data, err := h.deps.Weather.Locate(c.UserContext(), publicClientIP(c))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// locationQuery holds query parameters identifying a place: a coordinate or a name.
type locationQuery struct {
	Lat      *float64 `validate:"required_without=Location"`
	Lon      *float64 `validate:"required_without=Location"`
	Location string   `validate:"max=200"`
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	q.Location = strings.TrimSpace(c.Query("location"))
	for key, dst := range map[string]**float64{"lat": &q.Lat, "lon": &q.Lon} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return q, fmt.Errorf("%w: %s must be a number", weather.ErrInvalidInput, key)
		}
		*dst = &f
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// coordinateFor prefers explicit coordinates and geocodes the location name otherwise.
func (h *handlers) coordinateFor(ctx context.Context, q locationQuery) (weather.Coordinate, error) {
	if q.Lat != nil && q.Lon != nil {
		return weather.NewCoordinate(*q.Lat, *q.Lon)
	}
	_, coord, err := h.deps.Weather.ResolvePlace(ctx, q.Location)
	return coord, err
}

// publicClientIP returns the caller's address when it is routable, so ip-api locates the
// caller rather than this server.
func publicClientIP(c *fiber.Ctx) string {
	candidates := append(c.IPs(), c.IP())
	for _, raw := range candidates {
		addr, err := netip.ParseAddr(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
			continue
		}
		return addr.String()
	}
	return ""
}
