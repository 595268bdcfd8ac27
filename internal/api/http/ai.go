package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// placeBody is the location part of every AI request. lat and lon accept numbers or numeric strings.
type placeBody struct {
	Lat      json.Number `json:"lat" validate:"required_without=Location"`
	Lon      json.Number `json:"lon" validate:"required_without=Location"`
	Location string      `json:"location" validate:"max=200"`
}

func (p placeBody) target() (assistant.Target, error) {
	if p.Lat != "" && p.Lon != "" {
		coord, err := parseCoordinate(p.Lat, p.Lon)
		if err != nil {
			return assistant.Target{}, err
		}
		return assistant.Target{Coordinate: &coord}, nil
	}
	return assistant.Target{Location: strings.TrimSpace(p.Location)}, nil
}

func parseCoordinate(lat, lon json.Number) (weather.Coordinate, error) {
	la, err := lat.Float64()
	if err != nil {
		return weather.Coordinate{}, fmt.Errorf("%w: lat must be a number", weather.ErrInvalidInput)
	}
	lo, err := lon.Float64()
	if err != nil {
		return weather.Coordinate{}, fmt.Errorf("%w: lon must be a number", weather.ErrInvalidInput)
	}
	return weather.NewCoordinate(la, lo)
}

type askBody struct {
	Question  string `json:"question" validate:"required,max=2000"`
	SessionID string `json:"sessionId" validate:"max=128"`
	placeBody
}

type activityBody struct {
	Activity string `json:"activity" validate:"required,max=500"`
	placeBody
}

type floodBody struct {
	Lat json.Number `json:"lat" validate:"required"`
	Lon json.Number `json:"lon" validate:"required"`
}

// bindBody parses and validates a JSON body.
func bindBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: malformed request body", weather.ErrInvalidInput)
	}
	return validate.Struct(out)
}

func (h *handlers) ask(c *fiber.Ctx) error {
	var req askBody
	if err := bindBody(c, &req); err != nil {
		return err
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

	return c.JSON(fiber.Map{
		"success":         true,
		"answer":          res.Answer,
		"sessionId":       res.SessionID,
		"isFirstQuestion": res.IsFirstQuestion,
		"questionCount":   res.QuestionCount,
	})
}

func (h *handlers) insights(c *fiber.Ctx) error {
	var req askBody
	if err := bindBody(c, &req); err != nil {
		return err
	}
	target, err := req.target()
	if err != nil {
		return err
	}
	answer, err := h.deps.Assistant.Insights(c.UserContext(), req.Question, target)
	if err != nil {
		return err
	}
	return answered(c, answer)
}

func (h *handlers) activity(c *fiber.Ctx) error {
	var req activityBody
	if err := bindBody(c, &req); err != nil {
		return err
	}
	target, err := req.target()
	if err != nil {
		return err
	}
	answer, err := h.deps.Assistant.Activity(c.UserContext(), req.Activity, target)
	if err != nil {
		return err
	}
	return answered(c, answer)
}

func (h *handlers) compare(c *fiber.Ctx) error {
	var req askBody
	if err := bindBody(c, &req); err != nil {
		return err
	}
	target, err := req.target()
	if err != nil {
		return err
	}
	answer, err := h.deps.Assistant.Compare(c.UserContext(), req.Question, target)
	if err != nil {
		return err
	}
	return answered(c, answer)
}

func (h *handlers) floodRisk(c *fiber.Ctx) error {
	var req floodBody
	if err := bindBody(c, &req); err != nil {
		return err
	}
	coord, err := parseCoordinate(req.Lat, req.Lon)
	if err != nil {
		return err
	}
	answer, err := h.deps.Assistant.FloodRisk(c.UserContext(), coord)
	if err != nil {
		return err
	}
	return answered(c, answer)
}

func answered(c *fiber.Ctx, answer string) error {
	return c.JSON(fiber.Map{
		"success": true,
		"answer":  answer,
	})
}

func (h *handlers) deleteSession(c *fiber.Ctx) error {
	if !h.deps.Sessions.Delete(c.Params("sessionId")) {
		return store.ErrNotFound
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session cleared successfully.",
	})
}

func (h *handlers) listSessions(c *fiber.Ctx) error {
	sessions := h.deps.Sessions.List()
	return c.JSON(fiber.Map{
		"activeSessions": len(sessions),
		"sessions":       sessions,
	})
}
