package speech

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Starter opens an upstream recognition session. *Client implements it.
type Starter interface {
	Start(ctx context.Context) (Conn, error)
}

// Gauge tracks open relays. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

// Relay pipes audio frames from a browser connection to Speechmatics and transcripts back.
type Relay struct {
	upstream     Starter
	gauge        Gauge
	logger       *slog.Logger
	drainTimeout time.Duration
}

// NewRelay creates a new Relay. gauge may be nil.
func NewRelay(upstream Starter, gauge Gauge, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		upstream:     upstream,
		gauge:        gauge,
		logger:       logger,
		drainTimeout: 10 * time.Second,
	}
}

// forwarded lists the upstream messages the browser sees.
var forwarded = map[string]bool{
	MsgAddTranscript:        true,
	MsgAddPartialTranscript: true,
	MsgEndOfTranscript:      true,
	MsgError:                true,
}

// Serve runs one relay session until the client stops sending audio and the upstream
// finishes the transcript, or either side fails. Binary client frames are audio; a text
// frame {"message":"EndOfStream"} ends the audio without closing the socket.
func (r *Relay) Serve(ctx context.Context, client Conn) {
	if r.gauge != nil {
		r.gauge.Inc()
		defer r.gauge.Dec()
	}

	up, err := r.upstream.Start(ctx)
	if err != nil {
		r.logger.Error("transcription session failed to start", "error", err)
		writeError(client, "transcription service unavailable")
		client.Close()
		return
	}
	r.logger.Info("transcription session started")

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		r.pumpTranscripts(up, client)
	}()

	seq := r.pumpAudio(client, up, done)

	if err := up.WriteMessage(websocket.TextMessage, EndOfStreamMessage(seq)); err != nil {
		r.logger.Debug("send EndOfStream failed", "error", err)
	}
	select {
	case <-done:
	case <-time.After(r.drainTimeout):
		r.logger.Warn("transcript drain timed out", "chunks", seq)
	case <-ctx.Done():
	}
	up.Close()
	wg.Wait()
	r.logger.Info("transcription session closed", "chunks", seq)
}

// pumpAudio forwards audio until the client ends the stream or the upstream is done.
// It returns the number of chunks sent.
func (r *Relay) pumpAudio(client, up Conn, done <-chan struct{}) int {
	seq := 0
	for {
		select {
		case <-done:
			return seq
		default:
		}

		mt, data, err := client.ReadMessage()
		if err != nil {
			r.logger.Debug("client stream ended", "error", err)
			return seq
		}

		switch mt {
		case websocket.BinaryMessage:
			if err := up.WriteMessage(websocket.BinaryMessage, data); err != nil {
				r.logger.Warn("forward audio failed", "error", err)
				return seq
			}
			seq++
		case websocket.TextMessage:
			var env envelope
			if json.Unmarshal(data, &env) == nil && env.Message == MsgEndOfStream {
				return seq
			}
		}
	}
}

// pumpTranscripts forwards transcript messages to the client until EndOfTranscript,
// an upstream error or a closed connection.
func (r *Relay) pumpTranscripts(up, client Conn) {
	for {
		_, data, err := up.ReadMessage()
		if err != nil {
			if !IsClosed(err) {
				r.logger.Debug("upstream read ended", "error", err)
			}
			writeError(client, "transcription stream closed")
			client.Close()
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.logger.Warn("unreadable upstream message", "error", err)
			continue
		}
		if !forwarded[env.Message] {
			continue
		}

		if env.Message == MsgError {
			r.logger.Error("speechmatics error", "type", env.Type, "reason", env.Reason)
			payload, _ := json.Marshal(map[string]json.RawMessage{
				"message": json.RawMessage(`"Error"`),
				"error":   json.RawMessage(data),
			})
			_ = client.WriteMessage(websocket.TextMessage, payload)
			// unblocks the audio pump
			client.Close()
			return
		}

		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			r.logger.Debug("client write failed", "error", err)
			return
		}
		if env.Message == MsgEndOfTranscript {
			return
		}
	}
}

func writeError(client Conn, reason string) {
	payload, _ := json.Marshal(map[string]string{"message": MsgError, "error": reason})
	_ = client.WriteMessage(websocket.TextMessage, payload)
}
