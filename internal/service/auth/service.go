// Package auth implements admin login and bearer token authorization.
// Registration has no API surface; users are created via cmd/createuser.
package auth

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"github.com/martijnd/featherlog/internal/domain"
	"github.com/martijnd/featherlog/internal/repository"
	"github.com/martijnd/featherlog/pkg/config"
	"github.com/martijnd/featherlog/pkg/crypto"
	jwtpkg "github.com/martijnd/featherlog/pkg/jwt"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords;
// login responses never distinguish the two.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// Login authenticates an admin user and returns a signed bearer token.
func (s Service) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := jwtpkg.GenerateToken(user.ID, user.Username, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return user, token, nil
}

// Authorize validates a bearer token and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}
