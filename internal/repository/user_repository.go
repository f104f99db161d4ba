package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

const userColumns = "id, chat_id, group_id, subgroup, show_iet, show_military, active, created_at, updated_at"

// UserRepository provides persistence for registered users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID loads a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &user, nil
}

// FindByChatID loads a user by messenger chat id.
func (r *UserRepository) FindByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE chat_id = $1`, userColumns)

	var user models.User
	if err := r.db.GetContext(ctx, &user, query, chatID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find user by chat %d: %w", chatID, err)
	}
	return &user, nil
}

// ListActive returns active users in id order with offset pagination, for
// the periodic jobs that walk the whole user base.
func (r *UserRepository) ListActive(ctx context.Context, limit, offset int) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE active ORDER BY id LIMIT $1 OFFSET $2`, userColumns)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

// Upsert registers a user or refreshes an existing registration.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (id, chat_id, group_id, subgroup, show_iet, show_military, active, created_at, updated_at)
		VALUES (:id, :chat_id, :group_id, :subgroup, :show_iet, :show_military, :active, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			group_id = EXCLUDED.group_id,
			subgroup = EXCLUDED.subgroup,
			show_iet = EXCLUDED.show_iet,
			show_military = EXCLUDED.show_military,
			active = EXCLUDED.active,
			updated_at = NOW()`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	return nil
}

// SetActive toggles a user's participation in periodic jobs.
func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set user %d active=%t: %w", id, active, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}
