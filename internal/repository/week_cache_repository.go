package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/studtime/studtime/internal/models"
)

// WeekCacheRepository stores synthesized week timetables keyed by
// (owner, group, year, week). Owner 0 is the shared personalization-free row.
type WeekCacheRepository struct {
	db *sqlx.DB
}

// NewWeekCacheRepository creates a new week cache repository.
func NewWeekCacheRepository(db *sqlx.DB) *WeekCacheRepository {
	return &WeekCacheRepository{db: db}
}

// Find loads a cache entry, returning (nil, nil) when the key has never
// been built.
func (r *WeekCacheRepository) Find(ctx context.Context, key models.WeekKey) (*models.WeekCacheEntry, error) {
	const query = `SELECT owner, group_id, year, week_number, cached_timetable, content_hash, cached_until, last_synced_at
		FROM week_cache WHERE owner = $1 AND group_id = $2 AND year = $3 AND week_number = $4`

	var entry models.WeekCacheEntry
	if err := r.db.GetContext(ctx, &entry, query, key.Owner, key.GroupID, key.Year, key.WeekNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find week cache %s: %w", key.String(), err)
	}
	return &entry, nil
}

// Upsert writes a cache entry, replacing any previous build for the key.
func (r *WeekCacheRepository) Upsert(ctx context.Context, entry *models.WeekCacheEntry) error {
	const query = `INSERT INTO week_cache (owner, group_id, year, week_number, cached_timetable, content_hash, cached_until, last_synced_at)
		VALUES (:owner, :group_id, :year, :week_number, :cached_timetable, :content_hash, :cached_until, :last_synced_at)
		ON CONFLICT (owner, group_id, year, week_number) DO UPDATE SET
			cached_timetable = EXCLUDED.cached_timetable,
			content_hash = EXCLUDED.content_hash,
			cached_until = EXCLUDED.cached_until,
			last_synced_at = EXCLUDED.last_synced_at`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("upsert week cache %d:%s:%d:%d: %w", entry.Owner, entry.GroupID, entry.Year, entry.WeekNumber, err)
	}
	return nil
}

// ExpireOwner ends the cache validity of every week owned by the user,
// forcing re-synthesis on the next read. Used after overlay writes.
func (r *WeekCacheRepository) ExpireOwner(ctx context.Context, owner int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE week_cache SET cached_until = NOW() WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("expire week cache for owner %d: %w", owner, err)
	}
	return nil
}

// TouchSyncedAt stamps the sync time on every cached row of a group week,
// personal and shared alike, so one upstream fetch refreshes them all.
func (r *WeekCacheRepository) TouchSyncedAt(ctx context.Context, groupID string, year, week int, at time.Time) error {
	const query = `UPDATE week_cache SET last_synced_at = $1 WHERE group_id = $2 AND year = $3 AND week_number = $4`

	if _, err := r.db.ExecContext(ctx, query, at, groupID, year, week); err != nil {
		return fmt.Errorf("touch week cache sync time %s %d/%d: %w", groupID, year, week, err)
	}
	return nil
}
