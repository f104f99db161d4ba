package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/studtime/studtime/internal/models"
)

// NotificationRepository is the outbox for scheduled user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts a day's plan in one transaction.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.PendingNotification) error {
	if len(notifications) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification batch tx: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO notifications (id, user_id, chat_target, kind, send_at, text, image_bytes, created_at)
		VALUES (:id, :user_id, :chat_target, :kind, :send_at, :text, :image_bytes, NOW())`

	for i := range notifications {
		if _, err := tx.NamedExecContext(ctx, query, &notifications[i]); err != nil {
			return fmt.Errorf("insert notification %s: %w", notifications[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification batch tx: %w", err)
	}
	return nil
}

// ListDue returns unsent notifications whose send time has arrived, oldest
// first.
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.PendingNotification, error) {
	const query = `SELECT id, user_id, chat_target, kind, send_at, text, image_bytes, sent_at, created_at
		FROM notifications WHERE sent_at IS NULL AND send_at <= $1
		ORDER BY send_at LIMIT $2`

	var notifications []models.PendingNotification
	if err := r.db.SelectContext(ctx, &notifications, query, now, limit); err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	return notifications, nil
}

// MarkSent records the delivery time of a notification.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark notification %s sent: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteScheduledForDay clears the user's unsent notifications inside the
// window so a re-plan replaces rather than duplicates them.
func (r *NotificationRepository) DeleteScheduledForDay(ctx context.Context, userID int64, from, to time.Time) error {
	const query = `DELETE FROM notifications WHERE user_id = $1 AND sent_at IS NULL AND send_at >= $2 AND send_at < $3`

	if _, err := r.db.ExecContext(ctx, query, userID, from, to); err != nil {
		return fmt.Errorf("delete scheduled notifications for user %d: %w", userID, err)
	}
	return nil
}

// PurgeSentBefore removes delivered notifications older than the cutoff.
func (r *NotificationRepository) PurgeSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE sent_at IS NOT NULL AND sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sent notifications: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count purged notifications: %w", err)
	}
	return affected, nil
}
