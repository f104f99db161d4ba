package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

const overlayColumns = "id, owner_user_id, target_lesson_id, target_series_id, year, week_number, weekday, time_slot, begin_time, end_time, enabled, hidden, discipline, kind, teacher_name, online, building, room, subgroup, comment, created_at, updated_at"

// OverlayRepository provides persistence for per-user timetable overlays.
type OverlayRepository struct {
	db *sqlx.DB
}

// NewOverlayRepository creates a new overlay repository.
func NewOverlayRepository(db *sqlx.DB) *OverlayRepository {
	return &OverlayRepository{db: db}
}

// FindByID loads an overlay by id.
func (r *OverlayRepository) FindByID(ctx context.Context, id string) (*models.Overlay, error) {
	query := fmt.Sprintf(`SELECT %s FROM overlays WHERE id = $1`, overlayColumns)

	var overlay models.Overlay
	if err := r.db.GetContext(ctx, &overlay, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find overlay %s: %w", id, err)
	}
	return &overlay, nil
}

// ListForUserWeek returns the user's overlays placed into the given week.
func (r *OverlayRepository) ListForUserWeek(ctx context.Context, userID int64, groupID string, year, week int) ([]models.Overlay, error) {
	query := fmt.Sprintf(`SELECT %s FROM overlays
		WHERE owner_user_id = $1 AND year = $2 AND week_number = $3
		ORDER BY weekday, time_slot, created_at`, overlayColumns)

	var overlays []models.Overlay
	if err := r.db.SelectContext(ctx, &overlays, query, userID, year, week); err != nil {
		return nil, fmt.Errorf("list overlays for user %d week %d/%d: %w", userID, year, week, err)
	}
	return overlays, nil
}

// ListRelevantForWeek returns every overlay the synthesis of a week must
// consider: overlays placed into the week, plus overlays that target lessons
// native to the week but relocate them elsewhere. The second group is what
// lets synthesis drop a relocated-away lesson from its home week.
func (r *OverlayRepository) ListRelevantForWeek(ctx context.Context, userID int64, groupID string, year, week int) ([]models.Overlay, error) {
	query := fmt.Sprintf(`SELECT %s FROM overlays
		WHERE owner_user_id = $1 AND year = $3 AND week_number = $4
		UNION
		SELECT %s FROM overlays
		WHERE owner_user_id = $1 AND target_lesson_id IN (
			SELECT l.id FROM lessons l
			WHERE l.group_id = $2 AND l.year = $3 AND l.week_number = $4 AND l.valid_until > NOW()
		)
		ORDER BY weekday, time_slot, created_at`, overlayColumns, overlayColumns)

	var overlays []models.Overlay
	if err := r.db.SelectContext(ctx, &overlays, query, userID, groupID, year, week); err != nil {
		return nil, fmt.Errorf("list relevant overlays for user %d week %d/%d: %w", userID, year, week, err)
	}
	return overlays, nil
}

// Create inserts a new overlay.
func (r *OverlayRepository) Create(ctx context.Context, overlay *models.Overlay) error {
	const query = `INSERT INTO overlays (id, owner_user_id, target_lesson_id, target_series_id, year, week_number, weekday, time_slot, begin_time, end_time, enabled, hidden, discipline, kind, teacher_name, online, building, room, subgroup, comment, created_at, updated_at)
		VALUES (:id, :owner_user_id, :target_lesson_id, :target_series_id, :year, :week_number, :weekday, :time_slot, :begin_time, :end_time, :enabled, :hidden, :discipline, :kind, :teacher_name, :online, :building, :room, :subgroup, :comment, NOW(), NOW())`

	if _, err := r.db.NamedExecContext(ctx, query, overlay); err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}
	return nil
}

// Update rewrites an existing overlay.
func (r *OverlayRepository) Update(ctx context.Context, overlay *models.Overlay) error {
	const query = `UPDATE overlays SET
			target_lesson_id = :target_lesson_id,
			target_series_id = :target_series_id,
			year = :year,
			week_number = :week_number,
			weekday = :weekday,
			time_slot = :time_slot,
			begin_time = :begin_time,
			end_time = :end_time,
			enabled = :enabled,
			hidden = :hidden,
			discipline = :discipline,
			kind = :kind,
			teacher_name = :teacher_name,
			online = :online,
			building = :building,
			room = :room,
			subgroup = :subgroup,
			comment = :comment,
			updated_at = NOW()
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, overlay)
	if err != nil {
		return fmt.Errorf("update overlay %s: %w", overlay.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// UpsertSeriesBatch writes the per-occurrence overlays produced by a series
// patch. Conflicts on (owner, target lesson) update in place, so re-applying
// the same patch is idempotent.
func (r *OverlayRepository) UpsertSeriesBatch(ctx context.Context, overlays []models.Overlay) error {
	if len(overlays) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin series batch tx: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO overlays (id, owner_user_id, target_lesson_id, target_series_id, year, week_number, weekday, time_slot, begin_time, end_time, enabled, hidden, discipline, kind, teacher_name, online, building, room, subgroup, comment, created_at, updated_at)
		VALUES (:id, :owner_user_id, :target_lesson_id, :target_series_id, :year, :week_number, :weekday, :time_slot, :begin_time, :end_time, :enabled, :hidden, :discipline, :kind, :teacher_name, :online, :building, :room, :subgroup, :comment, NOW(), NOW())
		ON CONFLICT (owner_user_id, target_lesson_id) WHERE target_lesson_id IS NOT NULL DO UPDATE SET
			target_series_id = EXCLUDED.target_series_id,
			year = EXCLUDED.year,
			week_number = EXCLUDED.week_number,
			weekday = EXCLUDED.weekday,
			time_slot = EXCLUDED.time_slot,
			begin_time = EXCLUDED.begin_time,
			end_time = EXCLUDED.end_time,
			enabled = EXCLUDED.enabled,
			hidden = EXCLUDED.hidden,
			discipline = EXCLUDED.discipline,
			kind = EXCLUDED.kind,
			teacher_name = EXCLUDED.teacher_name,
			online = EXCLUDED.online,
			building = EXCLUDED.building,
			room = EXCLUDED.room,
			subgroup = EXCLUDED.subgroup,
			comment = EXCLUDED.comment,
			updated_at = NOW()`

	for i := range overlays {
		if _, err := tx.NamedExecContext(ctx, query, &overlays[i]); err != nil {
			return fmt.Errorf("upsert series overlay for lesson %v: %w", overlays[i].TargetLessonID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit series batch tx: %w", err)
	}
	return nil
}

// Delete removes an overlay by id.
func (r *OverlayRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM overlays WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete overlay %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// DeleteBySeries removes every overlay the user attached to a lesson series
// and reports how many were dropped.
func (r *OverlayRepository) DeleteBySeries(ctx context.Context, ownerUserID int64, seriesID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM overlays WHERE owner_user_id = $1 AND target_series_id = $2`, ownerUserID, seriesID)
	if err != nil {
		return 0, fmt.Errorf("delete overlays by series %s: %w", seriesID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted overlays for series %s: %w", seriesID, err)
	}
	return affected, nil
}
