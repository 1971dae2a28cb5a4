package api

import (
	"time"

	"todo-api/internal/config"
	"todo-api/internal/middleware"
	"todo-api/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewApp builds the fiber app with middleware and routes.
func NewApp(deps config.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "todo-api",
		ErrorHandler: middleware.ErrorResponder,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.RequestLogger())

	origins := deps.CORSAllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	if rl := deps.RateLimit; rl.Max > 0 {
		window := rl.Window
		if window <= 0 {
			window = time.Minute
		}
		app.Use(limiter.New(limiter.Config{
			Max:        rl.Max,
			Expiration: window,
			Storage:    rl.Storage,
			LimitReached: func(c *fiber.Ctx) error {
				logger.SecurityLogger.Warn("Rate limit reached", zap.String("ip", c.IP()))
				return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests")
			},
		}))
	}

	RegisterRoutes(app, deps)
	return app
}
