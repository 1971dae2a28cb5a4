package api

import (
	"todo-api/internal/api/handlers"
	"todo-api/internal/config"
	"todo-api/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, deps config.Dependencies) {
	validate := deps.Validate
	if validate == nil {
		validate = handlers.NewValidator()
	}
	auth := handlers.NewAuthHandler(deps.Auth, validate)
	tasks := handlers.NewTaskHandler(deps.Tasks, validate)

	app.Get("/health", handlers.Health(deps.DB))

	// Auth
	app.Post("/register", auth.Register)
	app.Post("/login", auth.Login)

	// Task
	todoRoutes := app.Group("/todos", middleware.UseToken(deps.Tokens))
	todoRoutes.Post("/", tasks.CreateTask)
	todoRoutes.Get("/", tasks.ListTasks)
	todoRoutes.Get("/:id", tasks.GetTask)
	todoRoutes.Put("/:id", tasks.UpdateTask)
	todoRoutes.Delete("/:id", tasks.DeleteTask)

	app.Use(middleware.NotFound)
}
