package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Error is a client-facing failure raised by a middleware. The application
// error handler renders it with its own status and code.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// StatusOf returns the status the error handler will send for err, or the
// status already written when err is nil.
func StatusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Status
	}
	return fiber.StatusInternalServerError
}
