package middleware

import (
	"errors"
	"strings"

	"todo-api/pkg/logger"
	"todo-api/pkg/token"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const userIDKey = "userID"

// UseToken rejects requests without a valid bearer token and stores the
// authenticated user id in the request locals.
func UseToken(tokens *token.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "No token provided")
		}
		scheme, raw, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			logger.SecurityLogger.Warn("Invalid authorization header", zap.String("ip", c.IP()))
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token format")
		}

		userID, err := tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			logger.SecurityLogger.Warn("Rejected token",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return fiber.NewError(fiber.StatusUnauthorized, tokenMessage(err))
		}

		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

func tokenMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, token.ErrTokenMalformed):
		return "Malformed token"
	case errors.Is(err, token.ErrTokenMissing):
		return "No token provided"
	default:
		return "Invalid token"
	}
}

// UserID returns the id stored by UseToken, or zero outside authenticated routes.
func UserID(c *fiber.Ctx) int {
	id, _ := c.Locals(userIDKey).(int)
	return id
}
