package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"rtodocs/internal/logging"
)

// Logger logs each HTTP request as one JSON line with request_id, method,
// path, status, latency (ms) and, when authenticated, user_id.
func Logger(l *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := StatusOf(c, err)
		fields := logging.Fields{
			"component":  "http",
			"event":      "http_request",
			"request_id": RequestIDFrom(c),
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency":    float64(time.Since(start).Microseconds()) / 1000,
		}
		if caller, ok := CallerFrom(c); ok {
			fields["user_id"] = caller.UserID
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			fields["level"] = "error"
		case status >= fiber.StatusBadRequest:
			fields["level"] = "warn"
		}
		l.Log(fields)

		return err
	}
}

// LoggerWithWriter is Logger writing to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logging.New(w, loc))
}
