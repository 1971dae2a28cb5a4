package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"todo-api/internal/models"
	"todo-api/internal/repository"
	"todo-api/pkg/crypto"
	"todo-api/pkg/logger"
	"todo-api/pkg/token"

	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

// UserStore is the persistence the auth flow needs.
type UserStore interface {
	Create(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuthService struct {
	users  UserStore
	tokens *token.Manager
}

func NewAuthService(users UserStore, tokens *token.Manager) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Register creates an account and returns it together with a fresh token,
// so a new user is logged in right away.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, string, error) {
	email = strings.TrimSpace(email)

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, strings.TrimSpace(name), email, hashed)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		logger.SecurityLogger.Warn("Duplicate email on register", zap.String("email", email))
		return nil, "", ErrEmailTaken
	}
	if err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	tokenString, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	logger.AuditLogger.Info("User registered", zap.Int("user_id", user.ID))
	return user, tokenString, nil
}

// Login checks the credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		crypto.BurnCompare(password)
		logger.SecurityLogger.Warn("Login for unknown email", zap.String("email", email))
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("find user: %w", err)
	}

	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		logger.SecurityLogger.Warn("Invalid password", zap.Int("user_id", user.ID))
		return nil, "", ErrInvalidCredentials
	}

	tokenString, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	logger.AuditLogger.Info("Login success", zap.Int("user_id", user.ID))
	return user, tokenString, nil
}
