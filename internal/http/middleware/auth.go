package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"rtodocs/internal/model"
)

// CallerLocalKey is the locals key holding the authenticated model.Caller.
const CallerLocalKey = "caller"

// TokenVerifier turns a bearer token into a caller identity.
type TokenVerifier interface {
	Verify(raw string) (model.Caller, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the caller in locals. Requests without one fail with 401.
func Authenticate(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return &Error{Status: fiber.StatusUnauthorized, Code: "UNAUTHENTICATED", Message: "authentication required"}
		}
		caller, err := v.Verify(raw)
		if err != nil {
			return &Error{Status: fiber.StatusUnauthorized, Code: "INVALID_TOKEN", Message: "invalid or expired token"}
		}
		c.Locals(CallerLocalKey, caller)
		return c.Next()
	}
}

// RequireRole lets through callers holding one of roles. Authorization
// failures share the 401 status with authentication failures.
func RequireRole(roles ...model.Role) fiber.Handler {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *fiber.Ctx) error {
		caller, ok := CallerFrom(c)
		if !ok {
			return &Error{Status: fiber.StatusUnauthorized, Code: "UNAUTHENTICATED", Message: "authentication required"}
		}
		if !allowed[caller.Role] {
			return &Error{Status: fiber.StatusUnauthorized, Code: "INSUFFICIENT_ROLE", Message: "role not permitted for this action"}
		}
		return c.Next()
	}
}

// CallerFrom returns the caller stored by Authenticate.
func CallerFrom(c *fiber.Ctx) (model.Caller, bool) {
	caller, ok := c.Locals(CallerLocalKey).(model.Caller)
	if !ok || !caller.Authenticated() {
		return model.Caller{}, false
	}
	return caller, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
