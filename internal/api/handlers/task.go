package handlers

import (
	"context"
	"errors"
	"fmt"

	"todo-api/internal/middleware"
	"todo-api/internal/models"
	"todo-api/internal/repository"
	"todo-api/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TaskStore is the task persistence used by TaskHandler. Update and Delete
// enforce ownership themselves so the check and the write share one transaction.
type TaskStore interface {
	Create(ctx context.Context, ownerID int, title, description string) (*models.Task, error)
	GetByID(ctx context.Context, taskID int) (*models.Task, error)
	Update(ctx context.Context, taskID, ownerID int, upd models.TaskUpdate) (*models.Task, error)
	Delete(ctx context.Context, taskID, ownerID int) error
	List(ctx context.Context, ownerID int, q models.ListQuery) ([]models.Task, int, error)
}

type TaskHandler struct {
	tasks    TaskStore
	validate *validator.Validate
}

func NewTaskHandler(tasks TaskStore, validate *validator.Validate) *TaskHandler {
	return &TaskHandler{tasks: tasks, validate: validate}
}

type createTaskRequest struct {
	Title       string `json:"title" validate:"required,max=200,nonul"`
	Description string `json:"description" validate:"nonul"`
}

// updateTaskRequest uses pointers so absent fields stay untouched.
type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// taskError maps repository errors to HTTP errors.
func taskError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Task not found")
	case errors.Is(err, repository.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, "You do not have access to this task")
	case errors.Is(err, repository.ErrEmptyTitle):
		return fiber.NewError(fiber.StatusBadRequest, "Validation error: title is required")
	default:
		return err
	}
}

// taskID reads the :id param. Anything that cannot be a task id is a 404.
func taskID(c *fiber.Ctx) (int, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, fiber.NewError(fiber.StatusNotFound, "Task not found")
	}
	return id, nil
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req createTaskRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}

	task, err := h.tasks.Create(c.UserContext(), userID, req.Title, req.Description)
	if err != nil {
		return taskError(err)
	}
	logger.AuditLogger.Info("Task created", zap.Int("task_id", task.ID), zap.Int("user_id", userID))
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	id, err := taskID(c)
	if err != nil {
		return err
	}

	task, err := h.tasks.GetByID(c.UserContext(), id)
	if err != nil {
		return taskError(err)
	}
	if task.OwnerID != userID {
		logger.SecurityLogger.Warn("Read of foreign task", zap.Int("task_id", id), zap.Int("user_id", userID))
		return taskError(repository.ErrForbidden)
	}
	return c.JSON(task)
}

func (h *TaskHandler) UpdateTask(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	id, err := taskID(c)
	if err != nil {
		return err
	}

	var req updateTaskRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	if req.Title != nil {
		if err := h.validate.Var(*req.Title, "max=200"); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Validation error: title must be at most 200 characters")
		}
		if err := h.validate.Var(*req.Title, "nonul"); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Validation error: title must not contain NUL characters")
		}
	}
	if req.Description != nil {
		if err := h.validate.Var(*req.Description, "nonul"); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Validation error: description must not contain NUL characters")
		}
	}

	task, err := h.tasks.Update(c.UserContext(), id, userID, models.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			logger.SecurityLogger.Warn("Update of foreign task", zap.Int("task_id", id), zap.Int("user_id", userID))
		}
		return taskError(err)
	}
	logger.AuditLogger.Info("Task updated", zap.Int("task_id", id), zap.Int("user_id", userID))
	return c.JSON(task)
}

func (h *TaskHandler) DeleteTask(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	id, err := taskID(c)
	if err != nil {
		return err
	}

	if err := h.tasks.Delete(c.UserContext(), id, userID); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			logger.SecurityLogger.Warn("Delete of foreign task", zap.Int("task_id", id), zap.Int("user_id", userID))
		}
		return taskError(err)
	}
	logger.AuditLogger.Info("Task deleted", zap.Int("task_id", id), zap.Int("user_id", userID))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	q := models.ParseListQuery(func(key string) string { return c.Query(key) })

	items, total, err := h.tasks.List(c.UserContext(), userID, q)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	return c.JSON(models.TaskPage{
		Data:  items,
		Page:  q.Page,
		Limit: q.Limit,
		Total: total,
	})
}
