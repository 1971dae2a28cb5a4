package config

import (
	"time"

	"todo-api/internal/api/handlers"
	"todo-api/pkg/token"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Dependencies is everything the HTTP layer needs. main builds it once and
// passes it down; nothing here is a package-level global.
type Dependencies struct {
	Auth     handlers.Authenticator
	Tasks    handlers.TaskStore
	Tokens   *token.Manager
	Validate *validator.Validate
	// DB is pinged by /health and may be nil.
	DB handlers.Pinger

	CORSAllowOrigins string
	RateLimit        RateLimit
}

// RateLimit configures the per-IP limiter. Max 0 disables it; a nil Storage
// keeps counters in process memory.
type RateLimit struct {
	Max     int
	Window  time.Duration
	Storage fiber.Storage
}
