package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
	"github.com/i474232898/weather-assistant/internal/weather/providers"
)

// LLM generates an answer for a rendered prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts providers.GenerationOptions) (string, error)
}

// Composer builds the aggregated context for a coordinate. *weather.Service implements it.
type Composer interface {
	Compose(ctx context.Context, coord weather.Coordinate, opts weather.ComposeOptions) (weather.AggregatedContext, error)
	ResolvePlace(ctx context.Context, place string) (weather.Place, weather.Coordinate, error)
}

// Sessions is the part of the session store the assistant needs.
type Sessions interface {
	LookupOrCreate(candidate string) (string, bool)
	Touch(id string, coord weather.Coordinate) store.ChatSession
}

// AnswerRecorder counts generated answers per mode. Optional.
type AnswerRecorder interface {
	RecordAnswer(mode string)
}

// Config holds the tunables of the answer pipeline.
type Config struct {
	StationRadiusKm float64
	FloodRadiusKm   float64
	MaxStations     int
	MaxContextBytes int
}

// Target is where a question is about: a coordinate, or a place name to geocode.
type Target struct {
	Coordinate *weather.Coordinate
	Location   string
}

// AskRequest is one conversational question.
type AskRequest struct {
	Question  string
	Target    Target
	SessionID string
}

// AskResult is the answer plus the session bookkeeping the client needs for the next turn.
type AskResult struct {
	Answer          string `json:"answer"`
	SessionID       string `json:"sessionId"`
	IsFirstQuestion bool   `json:"isFirstQuestion"`
	QuestionCount   int    `json:"questionCount"`
}

// Service answers weather questions with the composer, the prompt builder and an LLM.
type Service struct {
	composer Composer
	llm      LLM
	sessions Sessions
	builder  Builder
	cfg      Config
	recorder AnswerRecorder
	logger   *slog.Logger
}

// NewService creates a new Service. recorder may be nil.
func NewService(composer Composer, llm LLM, sessions Sessions, cfg Config, recorder AnswerRecorder, logger *slog.Logger) *Service {
	if cfg.StationRadiusKm <= 0 {
		cfg.StationRadiusKm = weather.DefaultStationRadiusKm
	}
	if cfg.FloodRadiusKm <= 0 {
		cfg.FloodRadiusKm = weather.FloodStationRadiusKm
	}
	if cfg.MaxStations <= 0 {
		cfg.MaxStations = weather.DefaultMaxStations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		composer: composer,
		llm:      llm,
		sessions: sessions,
		builder:  Builder{MaxContextBytes: cfg.MaxContextBytes},
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

// Ask answers a question within a session. The session is only recorded once an answer
// was generated, so a failed call leaves no trace.
func (s *Service) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskResult{}, fmt.Errorf("%w: question is required", weather.ErrInvalidInput)
	}

	sessionID, isFirst := s.sessions.LookupOrCreate(req.SessionID)

	radius := s.cfg.StationRadiusKm
	if IsFloodQuestion(question) {
		radius = s.cfg.FloodRadiusKm
	}
	agg, err := s.compose(ctx, req.Target, true, radius)
	if err != nil {
		return AskResult{}, err
	}

	prompt, err := s.builder.Ask(question, agg, isFirst)
	if err != nil {
		return AskResult{}, err
	}
	answer, err := s.generate(ctx, prompt)
	if err != nil {
		return AskResult{}, err
	}

	sess := s.sessions.Touch(sessionID, agg.Coordinate)
	s.logger.Info("answered question",
		"session", sessionID, "first", isFirst, "count", sess.QuestionCount, "location", agg.PlaceName)

	return AskResult{
		Answer:          answer,
		SessionID:       sessionID,
		IsFirstQuestion: sess.QuestionCount == 1,
		QuestionCount:   sess.QuestionCount,
	}, nil
}

// Insights returns a multi-section analysis.
func (s *Service) Insights(ctx context.Context, question string, target Target) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", weather.ErrInvalidInput)
	}
	agg, err := s.compose(ctx, target, true, s.cfg.StationRadiusKm)
	if err != nil {
		return "", err
	}
	prompt, err := s.builder.Insights(question, agg)
	if err != nil {
		return "", err
	}
	return s.generate(ctx, prompt)
}

// Activity scores an activity against current conditions. Water data is only fetched
// for water activities.
func (s *Service) Activity(ctx context.Context, activity string, target Target) (string, error) {
	activity = strings.TrimSpace(activity)
	if activity == "" {
		return "", fmt.Errorf("%w: activity is required", weather.ErrInvalidInput)
	}
	agg, err := s.compose(ctx, target, IsWaterActivity(activity), s.cfg.StationRadiusKm)
	if err != nil {
		return "", err
	}
	prompt, err := s.builder.Activity(activity, agg)
	if err != nil {
		return "", err
	}
	return s.generate(ctx, prompt)
}

// Compare contrasts conditions across time windows.
func (s *Service) Compare(ctx context.Context, question string, target Target) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", weather.ErrInvalidInput)
	}
	agg, err := s.compose(ctx, target, true, s.cfg.StationRadiusKm)
	if err != nil {
		return "", err
	}
	prompt, err := s.builder.Compare(question, agg)
	if err != nil {
		return "", err
	}
	return s.generate(ctx, prompt)
}

// FloodRisk assesses flood risk with the wider station radius. Coordinates are required.
func (s *Service) FloodRisk(ctx context.Context, coord weather.Coordinate) (string, error) {
	agg, err := s.compose(ctx, Target{Coordinate: &coord}, true, s.cfg.FloodRadiusKm)
	if err != nil {
		return "", err
	}
	prompt, err := s.builder.Flood(agg)
	if err != nil {
		return "", err
	}
	return s.generate(ctx, prompt)
}

func (s *Service) compose(ctx context.Context, target Target, wantWater bool, radius float64) (weather.AggregatedContext, error) {
	opts := weather.ComposeOptions{
		WantWater:   wantWater,
		RadiusKm:    radius,
		MaxStations: s.cfg.MaxStations,
	}

	var coord weather.Coordinate
	switch {
	case target.Coordinate != nil:
		coord = *target.Coordinate
	case strings.TrimSpace(target.Location) != "":
		place, c, err := s.composer.ResolvePlace(ctx, target.Location)
		if err != nil {
			return weather.AggregatedContext{}, err
		}
		coord = c
		opts.PlaceName = place.Name
	default:
		return weather.AggregatedContext{}, fmt.Errorf("%w: lat/lon or location is required", weather.ErrInvalidInput)
	}

	return s.composer.Compose(ctx, coord, opts)
}

func (s *Service) generate(ctx context.Context, prompt Prompt) (string, error) {
	if prompt.Trimmed {
		s.logger.Warn("prompt context trimmed to fit cap", "mode", prompt.Mode, "max_bytes", s.cfg.MaxContextBytes)
	}
	answer, err := s.llm.Generate(ctx, prompt.Text, prompt.Options)
	if err != nil {
		s.logger.Error("answer generation failed", "mode", prompt.Mode, "error", err)
		return "", err
	}
	if s.recorder != nil {
		s.recorder.RecordAnswer(string(prompt.Mode))
	}
	return answer, nil
}
