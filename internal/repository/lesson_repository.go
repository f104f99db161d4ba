package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/studtime/studtime/internal/models"
)

const lessonColumns = "id, series_id, group_id, year, week_number, weekday, time_slot, begin_time, end_time, discipline, kind, teacher_name, online, building, room, subgroup, group_refs, flow_refs, valid_until, synced_at"

// LessonRepository provides persistence for the mirrored upstream lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository creates a new lesson repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// ListForWeekWithRelocations returns the unexpired lessons native to the
// given group week plus lessons from other weeks that the user's enabled
// overlays relocate into it. The union feeds the synthesis engine, which
// decides placement per lesson.
func (r *LessonRepository) ListForWeekWithRelocations(ctx context.Context, userID int64, groupID string, year, week int) ([]models.RawLesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons
		WHERE group_id = $2 AND year = $3 AND week_number = $4 AND valid_until > NOW()
		UNION
		SELECT %s FROM lessons
		WHERE valid_until > NOW() AND id IN (
			SELECT o.target_lesson_id FROM overlays o
			WHERE o.owner_user_id = $1 AND o.year = $3 AND o.week_number = $4
			  AND o.enabled AND o.target_lesson_id IS NOT NULL
		)
		ORDER BY weekday, time_slot, id`, lessonColumns, lessonColumns)

	var lessons []models.RawLesson
	if err := r.db.SelectContext(ctx, &lessons, query, userID, groupID, year, week); err != nil {
		return nil, fmt.Errorf("list lessons for week %s %d/%d: %w", groupID, year, week, err)
	}
	return lessons, nil
}

// ListBySeries returns every unexpired occurrence of a recurring lesson.
func (r *LessonRepository) ListBySeries(ctx context.Context, seriesID string) ([]models.RawLesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE series_id = $1 AND valid_until > NOW() ORDER BY year, week_number, weekday, time_slot`, lessonColumns)

	var lessons []models.RawLesson
	if err := r.db.SelectContext(ctx, &lessons, query, seriesID); err != nil {
		return nil, fmt.Errorf("list lessons by series %s: %w", seriesID, err)
	}
	return lessons, nil
}

// ListIDsForWeek returns ids of the unexpired mirrored lessons of a group week.
func (r *LessonRepository) ListIDsForWeek(ctx context.Context, groupID string, year, week int) ([]string, error) {
	const query = `SELECT id FROM lessons WHERE group_id = $1 AND year = $2 AND week_number = $3 AND valid_until > NOW() ORDER BY id`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID, year, week); err != nil {
		return nil, fmt.Errorf("list lesson ids for week %s %d/%d: %w", groupID, year, week, err)
	}
	return ids, nil
}

// ApplySync upserts the freshly fetched lessons and soft-expires the ones
// that disappeared upstream, in a single transaction so a partial failure
// never leaves the mirror mixing two sync generations.
func (r *LessonRepository) ApplySync(ctx context.Context, groupID string, year, week int, lessons []models.RawLesson, removedIDs []string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO lessons (id, series_id, group_id, year, week_number, weekday, time_slot, begin_time, end_time, discipline, kind, teacher_name, online, building, room, subgroup, group_refs, flow_refs, valid_until, synced_at)
		VALUES (:id, :series_id, :group_id, :year, :week_number, :weekday, :time_slot, :begin_time, :end_time, :discipline, :kind, :teacher_name, :online, :building, :room, :subgroup, :group_refs, :flow_refs, :valid_until, :synced_at)
		ON CONFLICT (id) DO UPDATE SET
			series_id = EXCLUDED.series_id,
			weekday = EXCLUDED.weekday,
			time_slot = EXCLUDED.time_slot,
			begin_time = EXCLUDED.begin_time,
			end_time = EXCLUDED.end_time,
			discipline = EXCLUDED.discipline,
			kind = EXCLUDED.kind,
			teacher_name = EXCLUDED.teacher_name,
			online = EXCLUDED.online,
			building = EXCLUDED.building,
			room = EXCLUDED.room,
			subgroup = EXCLUDED.subgroup,
			group_refs = EXCLUDED.group_refs,
			flow_refs = EXCLUDED.flow_refs,
			valid_until = EXCLUDED.valid_until,
			synced_at = EXCLUDED.synced_at`

	for i := range lessons {
		if _, err := tx.NamedExecContext(ctx, upsert, &lessons[i]); err != nil {
			return fmt.Errorf("upsert lesson %s: %w", lessons[i].ID, err)
		}
	}

	if len(removedIDs) > 0 {
		const expire = `UPDATE lessons SET valid_until = $1, synced_at = $1 WHERE id = ANY($2)`
		if _, err := tx.ExecContext(ctx, expire, at, pq.Array(removedIDs)); err != nil {
			return fmt.Errorf("expire removed lessons for %s %d/%d: %w", groupID, year, week, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync tx: %w", err)
	}
	return nil
}
