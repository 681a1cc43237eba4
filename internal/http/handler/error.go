package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"rtodocs/internal/http/middleware"
	"rtodocs/internal/logging"
	"rtodocs/internal/service"
	"rtodocs/internal/upload"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		Success:   false,
		Code:      code,
		Message:   message,
		RequestID: middleware.RequestIDFrom(c),
	})
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var me *middleware.Error
		if errors.As(err, &me) {
			return writeError(c, me.Status, me.Code, me.Message)
		}

		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			// an oversized upload is a validation failure like any other
			return writeError(c, fiber.StatusBadRequest, "FILE_TOO_LARGE", "request body too large")
		default:
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
	}
}

// respondError maps a service error to the wire. Unexpected errors are logged
// with the request id and answered with a generic message for action.
func respondError(c *fiber.Ctx, log *logging.Logger, action string, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return writeError(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", err.Error())
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrFileMissing):
		return writeError(c, fiber.StatusNotFound, "FILE_NOT_FOUND", err.Error())
	case errors.As(err, &verr):
		return writeValidationError(c, verr)
	}

	log.Error("http", action+"_failed", err, logging.Fields{
		"request_id": middleware.RequestIDFrom(c),
		"path":       c.Path(),
	})
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "failed to "+humanize(action))
}

func writeValidationError(c *fiber.Ctx, verr *service.ValidationError) error {
	switch {
	case errors.Is(verr, upload.ErrNoFile):
		return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", verr.Message)
	case errors.Is(verr, upload.ErrInvalidFile):
		return writeError(c, fiber.StatusBadRequest, "INVALID_FILE_TYPE", verr.Message)
	case errors.Is(verr, upload.ErrTooLarge):
		return writeError(c, fiber.StatusBadRequest, "FILE_TOO_LARGE", verr.Message)
	case errors.Is(verr, upload.ErrMultipleFiles), errors.Is(verr, upload.ErrMalformed):
		return writeError(c, fiber.StatusBadRequest, "INVALID_MULTIPART", verr.Message)
	default:
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", verr.Message)
	}
}

var actionMessages = map[string]string{
	"upload_document":   "upload document",
	"list_documents":    "list documents",
	"get_document":      "get document",
	"verify_document":   "verify document",
	"download_document": "download document",
}

func humanize(action string) string {
	if m, ok := actionMessages[action]; ok {
		return m
	}
	return "process request"
}
