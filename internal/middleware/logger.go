package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"todo-api/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// requestIDKey is where the requestid middleware stores the id.
const requestIDKey = "requestid"

// RequestID returns the id assigned to the current request, if any.
func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

// RequestLogger logs every request and turns panics into a plain 500.
// The panic value and stack only go to the error log.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				logger.ErrorLogger.Error(fmt.Sprintf("Recovered from panic: %v", r),
					zap.String("request_id", RequestID(c)),
					zap.String("stack", string(debug.Stack())),
				)
				err = fiber.NewError(fiber.StatusInternalServerError, internalErrorMessage)
			}

			status := c.Response().StatusCode()
			if err != nil {
				status = statusOf(err)
			}
			logger.RequestLogger.Info("Request handled",
				zap.String("request_id", RequestID(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.IP()),
			)
		}()

		return c.Next()
	}
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
