package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByChatID(ctx context.Context, chatID int64) (*models.User, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// RegistrationDraft is the write-time payload for user registration and
// profile updates.
type RegistrationDraft struct {
	ID           int64  `json:"id" validate:"required"`
	ChatID       int64  `json:"chat_id" validate:"required"`
	GroupID      string `json:"group_id"`
	Subgroup     int    `json:"subgroup" validate:"min=0,max=9"`
	ShowIET      bool   `json:"show_iet"`
	ShowMilitary bool   `json:"show_military"`
}

// UserService manages registered users and their display settings.
type UserService struct {
	repo     userRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewUserService creates the user service.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validate: validate, logger: logger}
}

// Register creates or refreshes a user profile.
func (s *UserService) Register(ctx context.Context, draft RegistrationDraft) (*models.User, error) {
	if err := s.validate.Struct(draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	user := &models.User{
		ID:           draft.ID,
		ChatID:       draft.ChatID,
		GroupID:      draft.GroupID,
		Subgroup:     draft.Subgroup,
		ShowIET:      draft.ShowIET,
		ShowMilitary: draft.ShowMilitary,
		Active:       true,
	}
	if err := s.repo.Upsert(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register user")
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("group_id", user.GroupID))
	return user, nil
}

// Get loads a user by id.
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByChat loads a user by messenger chat id.
func (s *UserService) GetByChat(ctx context.Context, chatID int64) (*models.User, error) {
	return s.repo.FindByChatID(ctx, chatID)
}

// SetActive toggles the user's participation in scheduled jobs.
func (s *UserService) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}
