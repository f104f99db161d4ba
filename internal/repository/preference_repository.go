package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studtime/studtime/internal/models"
)

// PreferenceRepository stores per-user notification preferences.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository creates a new preference repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Find loads the user's preferences, returning (nil, nil) when the user
// never customized them.
func (r *PreferenceRepository) Find(ctx context.Context, userID int64) (*models.NotificationPreferences, error) {
	const query = `SELECT user_id, day_start_enabled, lead_seconds, between_enabled, next_day_enabled, next_week_enabled, changes_enabled, updated_at
		FROM notification_preferences WHERE user_id = $1`

	var prefs models.NotificationPreferences
	if err := r.db.GetContext(ctx, &prefs, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find preferences for user %d: %w", userID, err)
	}
	return &prefs, nil
}

// Upsert writes the user's preferences.
func (r *PreferenceRepository) Upsert(ctx context.Context, prefs *models.NotificationPreferences) error {
	const query = `INSERT INTO notification_preferences (user_id, day_start_enabled, lead_seconds, between_enabled, next_day_enabled, next_week_enabled, changes_enabled, updated_at)
		VALUES (:user_id, :day_start_enabled, :lead_seconds, :between_enabled, :next_day_enabled, :next_week_enabled, :changes_enabled, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			day_start_enabled = EXCLUDED.day_start_enabled,
			lead_seconds = EXCLUDED.lead_seconds,
			between_enabled = EXCLUDED.between_enabled,
			next_day_enabled = EXCLUDED.next_day_enabled,
			next_week_enabled = EXCLUDED.next_week_enabled,
			changes_enabled = EXCLUDED.changes_enabled,
			updated_at = NOW()`

	if _, err := r.db.NamedExecContext(ctx, query, prefs); err != nil {
		return fmt.Errorf("upsert preferences for user %d: %w", prefs.UserID, err)
	}
	return nil
}
