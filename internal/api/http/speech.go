package httpapi

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/assistant"
)

type ttsBody struct {
	Text string `json:"text" validate:"required,max=5000"`
}

func (h *handlers) textToSpeech(c *fiber.Ctx) error {
	var req ttsBody
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if h.deps.Speech == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "text-to-speech is not configured")
	}

	audio, err := h.deps.Speech.Synthesize(c.UserContext(), req.Text)
	if err != nil {
		return err
	}
	return sendAudio(c, audio)
}

// fullFlow answers a question and returns the answer as speech.
func (h *handlers) fullFlow(c *fiber.Ctx) error {
	var req askBody
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if h.deps.Speech == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "text-to-speech is not configured")
	}
	target, err := req.target()
	if err != nil {
		return err
	}

	res, err := h.deps.Assistant.Ask(c.UserContext(), assistant.AskRequest{
		Question:  req.Question,
		Target:    target,
		SessionID: req.SessionID,
	})
	if err != nil {
		return err
	}

	audio, err := h.deps.Speech.Synthesize(c.UserContext(), res.Answer)
	if err != nil {
		return err
	}
	c.Set("X-Session-Id", res.SessionID)
	return sendAudio(c, audio)
}

func sendAudio(c *fiber.Ctx, audio []byte) error {
	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.Send(audio)
}

func registerSpeech(app *fiber.App, h *handlers) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/speech", func(c *fiber.Ctx) error {
		if h.deps.Relay == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "transcription is not configured")
		}
		return websocket.New(func(conn *websocket.Conn) {
			h.deps.Logger.Info("speech client connected", "remote", conn.RemoteAddr().String())
			h.deps.Relay.Serve(context.Background(), conn)
		})(c)
	})
}
