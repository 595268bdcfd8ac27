package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	GeminiAPIKey string
	GeminiModel  string
	// GeminiRPS limits outbound answer-generation calls per second (0 = unlimited).
	GeminiRPS float64

	LocationIQAPIKey     string
	GoogleGeocoderAPIKey string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	SpeechmaticsAPIKey string
	SpeechmaticsURL    string
	SpeechLanguage     string

	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout time.Duration

	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration

	StationRadiusKm    float64
	FloodRadiusKm      float64
	StationMaxResults  int
	StationCatalogPath string

	// PromptMaxContextBytes caps the serialized weather context in prompts (0 = no cap).
	PromptMaxContextBytes int

	KeepAliveURL      string
	KeepAliveInterval time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &AppConfig{
		Port:                 getenvDefault("PORT", "4000"),
		AllowedOrigins:       splitList(getenvDefault("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:             getenvDefault("LOG_LEVEL", "info"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getenvDefault("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		LocationIQAPIKey:     os.Getenv("LOCATIONIQ_API_KEY"),
		GoogleGeocoderAPIKey: os.Getenv("GOOGLE_GEOCODER_API_KEY"),
		ElevenLabsAPIKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:    getenvDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		SpeechmaticsAPIKey:   os.Getenv("SPEECHMATICS_API_KEY"),
		SpeechmaticsURL:      os.Getenv("SPEECHMATICS_URL"),
		SpeechLanguage:       getenvDefault("SPEECH_LANGUAGE", "hi"),
		StationCatalogPath:   os.Getenv("STATION_CATALOG_PATH"),
		KeepAliveURL:         os.Getenv("KEEPALIVE_URL"),
	}

	var err error
	if cfg.GeminiRPS, err = getenvFloat("GEMINI_RPS", 2); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = getenvDuration("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SessionSweepInterval, err = getenvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.KeepAliveInterval, err = getenvDuration("KEEPALIVE_INTERVAL", 14*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StationRadiusKm, err = getenvFloat("STATION_RADIUS_KM", 50); err != nil {
		return nil, err
	}
	if cfg.FloodRadiusKm, err = getenvFloat("FLOOD_RADIUS_KM", 100); err != nil {
		return nil, err
	}
	if cfg.StationMaxResults, err = getenvInt("STATION_MAX_RESULTS", 3); err != nil {
		return nil, err
	}
	if cfg.PromptMaxContextBytes, err = getenvInt("PROMPT_MAX_CONTEXT_BYTES", 0); err != nil {
		return nil, err
	}

	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: must be positive")
	}
	if cfg.SessionSweepInterval <= 0 || cfg.SessionIdleTTL <= 0 {
		return nil, fmt.Errorf("invalid session timing: SESSION_IDLE_TTL and SESSION_SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *AppConfig) Addr() string {
	return ":" + c.Port
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
