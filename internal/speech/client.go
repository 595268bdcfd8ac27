package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/i474232898/weather-assistant/internal/weather"
)

// DefaultURL is the Speechmatics real-time endpoint.
const DefaultURL = "wss://eu2.rt.speechmatics.com/v2"

// Message types exchanged with Speechmatics.
const (
	MsgStartRecognition     = "StartRecognition"
	MsgRecognitionStarted   = "RecognitionStarted"
	MsgAddAudio             = "AddAudio"
	MsgAudioAdded           = "AudioAdded"
	MsgEndOfStream          = "EndOfStream"
	MsgAddTranscript        = "AddTranscript"
	MsgAddPartialTranscript = "AddPartialTranscript"
	MsgEndOfTranscript      = "EndOfTranscript"
	MsgError                = "Error"
	MsgWarning              = "Warning"
)

// Conn is the subset of a websocket connection the relay uses. Both gorilla and
// Fiber websocket connections satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Config describes the upstream transcription session.
type Config struct {
	URL            string
	APIKey         string
	Language       string
	OperatingPoint string
	EnablePartials bool
}

// Client opens recognition sessions against Speechmatics.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Language == "" {
		cfg.Language = "hi"
	}
	if cfg.OperatingPoint == "" {
		cfg.OperatingPoint = "enhanced"
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

type startRecognition struct {
	Message             string              `json:"message"`
	AudioFormat         audioFormat         `json:"audio_format"`
	TranscriptionConfig transcriptionConfig `json:"transcription_config"`
}

type audioFormat struct {
	Type string `json:"type"`
}

type transcriptionConfig struct {
	Language       string `json:"language"`
	OperatingPoint string `json:"operating_point,omitempty"`
	EnablePartials bool   `json:"enable_partials,omitempty"`
}

type endOfStream struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

// envelope is the common shape of every Speechmatics message.
type envelope struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Start dials Speechmatics, sends StartRecognition and waits for RecognitionStarted.
func (c *Client) Start(ctx context.Context) (Conn, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: speechmatics api key is not configured", weather.ErrUpstreamUnavailable)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: speechmatics handshake status %d: %v", weather.ErrUpstreamUnavailable, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: speechmatics dial: %v", weather.ErrUpstreamUnavailable, err)
	}

	start := startRecognition{
		Message:     MsgStartRecognition,
		AudioFormat: audioFormat{Type: "file"},
		TranscriptionConfig: transcriptionConfig{
			Language:       c.cfg.Language,
			OperatingPoint: c.cfg.OperatingPoint,
			EnablePartials: c.cfg.EnablePartials,
		},
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send StartRecognition: %v", weather.ErrUpstreamUnavailable, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: waiting for RecognitionStarted: %v", weather.ErrUpstreamUnavailable, err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: speechmatics: %v", weather.ErrMalformedResponse, err)
		}
		switch env.Message {
		case MsgRecognitionStarted:
			_ = conn.SetReadDeadline(time.Time{})
			return conn, nil
		case MsgError:
			conn.Close()
			return nil, fmt.Errorf("%w: speechmatics refused session: %s %s", weather.ErrUpstreamUnavailable, env.Type, env.Reason)
		}
	}
}

// EndOfStreamMessage encodes the final message after lastSeqNo audio chunks.
func EndOfStreamMessage(lastSeqNo int) []byte {
	data, _ := json.Marshal(endOfStream{Message: MsgEndOfStream, LastSeqNo: lastSeqNo})
	return data
}

// IsClosed reports whether err is a normal websocket closure.
func IsClosed(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway || ce.Code == websocket.CloseNoStatusReceived
	}
	return false
}
