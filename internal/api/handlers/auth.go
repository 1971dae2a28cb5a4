package handlers

import (
	"context"
	"errors"
	"strings"

	"todo-api/internal/models"
	"todo-api/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Authenticator registers and logs in users, returning a bearer token.
type Authenticator interface {
	Register(ctx context.Context, name, email, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
}

type AuthHandler struct {
	auth     Authenticator
	validate *validator.Validate
}

func NewAuthHandler(auth Authenticator, validate *validator.Validate) *AuthHandler {
	return &AuthHandler{auth: auth, validate: validate}
}

// bcrypt only reads the first 72 bytes of a password.
type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100,nonul"`
	Email    string `json:"email" validate:"required,email,max=255,nonul"`
	Password string `json:"password" validate:"required,maxbytes=72,nonul"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,nonul"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by both register and login.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, h.validate, &req, func() {
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)
	}); err != nil {
		return err
	}

	user, tok, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if errors.Is(err, service.ErrEmailTaken) {
		return fiber.NewError(fiber.StatusBadRequest, "Email already registered")
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: tok, User: user})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, h.validate, &req, func() {
		req.Email = strings.TrimSpace(req.Email)
	}); err != nil {
		return err
	}

	user, tok, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return err
	}
	return c.JSON(AuthResponse{Token: tok, User: user})
}
