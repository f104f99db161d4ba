package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studtime/studtime/internal/models"
)

func newWeekCacheRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestWeekCacheRepositoryFind(t *testing.T) {
	db, mock, cleanup := newWeekCacheRepoMock(t)
	defer cleanup()
	repo := NewWeekCacheRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"owner", "group_id", "year", "week_number", "cached_timetable", "content_hash", "cached_until", "last_synced_at"}).
		AddRow(int64(7), "IU5-31B", 2026, 10, []byte(`{}`), "abc", now.Add(time.Hour), now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT owner, group_id, year, week_number, cached_timetable, content_hash, cached_until, last_synced_at
		FROM week_cache WHERE owner = $1 AND group_id = $2 AND year = $3 AND week_number = $4`)).
		WithArgs(int64(7), "IU5-31B", 2026, 10).
		WillReturnRows(rows)

	key := models.WeekKey{Owner: 7, GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	entry, err := repo.Find(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "abc", entry.ContentHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeekCacheRepositoryFindMiss(t *testing.T) {
	db, mock, cleanup := newWeekCacheRepoMock(t)
	defer cleanup()
	repo := NewWeekCacheRepository(db)

	mock.ExpectQuery("SELECT owner").
		WithArgs(int64(7), "IU5-31B", 2026, 10).
		WillReturnRows(sqlmock.NewRows([]string{"owner"}))

	key := models.WeekKey{Owner: 7, GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	entry, err := repo.Find(context.Background(), key)
	require.NoError(t, err, "an unbuilt key is not an error")
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeekCacheRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newWeekCacheRepoMock(t)
	defer cleanup()
	repo := NewWeekCacheRepository(db)

	mock.ExpectExec("INSERT INTO week_cache").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	err := repo.Upsert(context.Background(), &models.WeekCacheEntry{
		Owner:           7,
		GroupID:         "IU5-31B",
		Year:            2026,
		WeekNumber:      10,
		CachedTimetable: []byte(`{}`),
		ContentHash:     "abc",
		CachedUntil:     now.Add(time.Hour),
		LastSyncedAt:    now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeekCacheRepositoryExpireOwner(t *testing.T) {
	db, mock, cleanup := newWeekCacheRepoMock(t)
	defer cleanup()
	repo := NewWeekCacheRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE week_cache SET cached_until = NOW() WHERE owner = $1`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.ExpireOwner(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeekCacheRepositoryTouchSyncedAt(t *testing.T) {
	db, mock, cleanup := newWeekCacheRepoMock(t)
	defer cleanup()
	repo := NewWeekCacheRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE week_cache SET last_synced_at = $1 WHERE group_id = $2 AND year = $3 AND week_number = $4`)).
		WithArgs(at, "IU5-31B", 2026, 10).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.TouchSyncedAt(context.Background(), "IU5-31B", 2026, 10, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
