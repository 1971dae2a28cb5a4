package middleware

import (
	"errors"

	"todo-api/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ErrorResponder is the app's fiber.Config.ErrorHandler. A *fiber.Error keeps
// its code and message; anything else is logged and answered with a bare 500.
func ErrorResponder(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := internalErrorMessage

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
		}
	} else {
		logger.ErrorLogger.Error("Unhandled error",
			zap.String("request_id", RequestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	return c.Status(code).JSON(ErrorResponse{
		Status:  code,
		Message: message,
		Success: false,
	})
}

// NotFound answers routes nothing else matched.
func NotFound(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "Not found")
}
