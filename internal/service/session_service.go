package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

type tokenStore interface {
	Save(ctx context.Context, userID int64, token string, ttl time.Duration) error
	Token(ctx context.Context, userID int64) (string, error)
	Drop(ctx context.Context, userID int64) error
}

// SessionService tracks upstream session tokens per user. A user without a
// live token is served read-only from the mirror until they re-authenticate.
type SessionService struct {
	tokens tokenStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionService creates the session service.
func NewSessionService(tokens tokenStore, ttl time.Duration, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{tokens: tokens, ttl: ttl, logger: logger}
}

// Authorize stores a freshly obtained upstream token for the user.
func (s *SessionService) Authorize(ctx context.Context, userID int64, token string) error {
	if token == "" {
		return appErrors.ErrValidation
	}
	if err := s.tokens.Save(ctx, userID, token, s.ttl); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session token")
	}
	return nil
}

// SessionToken returns the user's stored token, empty when expired.
func (s *SessionService) SessionToken(ctx context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", nil
	}
	return s.tokens.Token(ctx, user.ID)
}

// EnsureValidSession reports whether the user still holds an upstream
// session. It never errors the request path: Redis trouble degrades to
// read-only mode.
func (s *SessionService) EnsureValidSession(ctx context.Context, user *models.User) (bool, error) {
	if user == nil {
		return false, nil
	}
	token, err := s.tokens.Token(ctx, user.ID)
	if err != nil {
		s.logger.Warn("session lookup failed, degrading to read-only", zap.Int64("user_id", user.ID), zap.Error(err))
		return false, nil
	}
	return token != "", nil
}

// Invalidate drops the user's token, typically after the upstream rejected it.
func (s *SessionService) Invalidate(ctx context.Context, userID int64) error {
	return s.tokens.Drop(ctx, userID)
}
