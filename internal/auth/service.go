package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/directory"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	User        *directory.User `json:"user"`
}

// Service authenticates users against the directory
type Service struct {
	users  directory.Repository
	tokens *TokenIssuer
	logger *zap.Logger
}

func NewService(users directory.Repository, tokens *TokenIssuer, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

var errBadCredentials = fmt.Errorf("%w: invalid username or password", apperr.ErrUnauthorized)

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !user.Active {
		return nil, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("Failed login attempt", zap.String("username", req.Username))
		return nil, errBadCredentials
	}

	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.users.TouchLogin(ctx, user.ID); err != nil {
		s.logger.Warn("Failed to record login time", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	return &LoginResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expires, User: user}, nil
}

// Resolve maps a bearer token to an active user.
func (s *Service) Resolve(ctx context.Context, raw string) (*directory.User, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", apperr.ErrUnauthorized)
		}
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: account disabled", apperr.ErrUnauthorized)
	}
	return user, nil
}
