package httpapi

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-assistant/internal/metrics"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
)

const serviceName = "weather-assistant"

// Options configures the Fiber application.
type Options struct {
	AllowedOrigins []string
	// AccessLog enables Fiber's request logger.
	AccessLog bool
	Metrics   *metrics.Collector
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// NewApp builds the Fiber app with middleware, health, metrics and every API route.
func NewApp(deps Dependencies, opts Options) *fiber.App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	deps.Logger = opts.Logger

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		BodyLimit:             1 << 20,
		ErrorHandler:          errorHandler(opts.Logger, opts.Metrics),
	})

	// Global middleware
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(opts.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.Metrics != nil {
		app.Use(metricsMiddleware(opts.Metrics))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	RegisterRoutes(app, deps)
	return app
}

// errorHandler renders every error as {success:false, error, message}. Upstream details are
// logged and never returned.
func errorHandler(log *slog.Logger, collector *metrics.Collector) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, kind, message := classify(err)

		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Method(), "path", c.Path(), "request_id", c.Locals("requestid"), "error", err)
		} else {
			log.Debug("request rejected", "path", c.Path(), "status", code, "error", err)
		}
		if collector != nil {
			collector.RecordAPIError(kind, routePath(c))
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   kind,
			"message": message,
		})
	}
}

func classify(err error) (int, string, string) {
	var fe *fiber.Error
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, "invalid_input", describeValidation(ve)
	case errors.Is(err, weather.ErrInvalidInput):
		return fiber.StatusBadRequest, "invalid_input", strings.TrimPrefix(err.Error(), weather.ErrInvalidInput.Error()+": ")
	case errors.Is(err, weather.ErrNoResults):
		return fiber.StatusNotFound, "no_results", "No results found for the requested place."
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound, "not_found", "Session not found."
	case errors.As(err, &fe):
		kind := "internal"
		switch {
		case fe.Code == fiber.StatusNotFound:
			kind = "not_found"
		case fe.Code < fiber.StatusInternalServerError:
			kind = "invalid_input"
		}
		return fe.Code, kind, fe.Message
	default:
		return fiber.StatusInternalServerError, "upstream_unavailable", "Failed to get data from upstream services. Please try again later."
	}
}

func describeValidation(ve validator.ValidationErrors) string {
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "missing or invalid fields: " + strings.Join(fields, ", ")
}

// metricsMiddleware records one request sample per route. Errors are rendered here so the
// recorded status matches the response.
func metricsMiddleware(collector *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		collector.RecordAPIRequest(routePath(c), c.Method(), strconv.Itoa(c.Response().StatusCode()), time.Since(start))
		return nil
	}
}

func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return "unmatched"
}
