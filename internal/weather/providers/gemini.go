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

// GenerationOptions tunes one answer-generation call.
type GenerationOptions struct {
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// GeminiProvider generates answers through the Gemini generateContent REST endpoint.
type GeminiProvider struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewGeminiProvider(cfg HTTPClientConfig, apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	return &GeminiProvider{
		name:    "gemini",
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		httpCfg: cfg,
		circuit: newCircuitBreaker("gemini"),
	}
}

func (p *GeminiProvider) WithBaseURL(u string) *GeminiProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *GeminiProvider) Name() string {
	return p.name
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is empty", weather.ErrInvalidInput)
	}
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: gemini api key is not configured", weather.ErrUpstreamUnavailable)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			TopK:            opts.TopK,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		reqBody.GenerationConfig.Temperature = &t
	}
	if opts.TopP > 0 {
		tp := opts.TopP
		reqBody.GenerationConfig.TopP = &tp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: encode gemini request: %v", weather.ErrInvalidInput, err)
	}

	body, err := doRequest(ctx, p.name, p.httpCfg, p.circuit, func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", p.apiKey)
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Candidates []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", malformed(p.name, err)
	}
	if len(resp.Candidates) == 0 {
		reason := resp.PromptFeedback.BlockReason
		if reason == "" {
			reason = "no candidates"
		}
		return "", malformed(p.name, fmt.Errorf("empty answer: %s", reason))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", malformed(p.name, fmt.Errorf("empty answer text (finish reason %s)", resp.Candidates[0].FinishReason))
	}
	return text, nil
}
