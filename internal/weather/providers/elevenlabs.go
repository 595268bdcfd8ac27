package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// DefaultVoiceID is ElevenLabs' stock "Rachel" voice.
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// ElevenLabsProvider converts text to MP3 speech.
type ElevenLabsProvider struct {
	name    string
	apiKey  string
	voiceID string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewElevenLabsProvider(cfg HTTPClientConfig, apiKey, voiceID string) *ElevenLabsProvider {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	return &ElevenLabsProvider{
		name:    "elevenlabs",
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: "https://api.elevenlabs.io/v1",
		httpCfg: cfg,
		circuit: newCircuitBreaker("elevenlabs"),
	}
}

func (p *ElevenLabsProvider) WithBaseURL(u string) *ElevenLabsProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *ElevenLabsProvider) Name() string {
	return p.name
}

// Synthesize returns MP3 audio for text.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text to speak is required", weather.ErrInvalidInput)
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: elevenlabs api key is not configured", weather.ErrUpstreamUnavailable)
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("%w: encode tts request: %v", weather.ErrInvalidInput, err)
	}

	audio, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s/text-to-speech/%s?output_format=mp3_44100_128", p.baseURL, url.PathEscape(p.voiceID))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		req.Header.Set("xi-api-key", p.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, malformed(p.name, fmt.Errorf("empty audio"))
	}
	return audio, nil
}
