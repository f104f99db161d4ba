package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

type weekCacheRepoStub struct {
	entries map[string]*models.WeekCacheEntry
	upserts []models.WeekCacheEntry
	touched int
	findErr error
}

func (s *weekCacheRepoStub) Find(ctx context.Context, key models.WeekKey) (*models.WeekCacheEntry, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.entries[key.String()], nil
}

func (s *weekCacheRepoStub) Upsert(ctx context.Context, entry *models.WeekCacheEntry) error {
	if s.entries == nil {
		s.entries = make(map[string]*models.WeekCacheEntry)
	}
	s.entries[entry.Key().String()] = entry
	s.upserts = append(s.upserts, *entry)
	return nil
}

func (s *weekCacheRepoStub) TouchSyncedAt(ctx context.Context, groupID string, year, week int, at time.Time) error {
	s.touched++
	return nil
}

type weekLessonRepoStub struct {
	lessons []models.RawLesson
	calls   int
}

func (s *weekLessonRepoStub) ListForWeekWithRelocations(ctx context.Context, userID int64, groupID string, year, week int) ([]models.RawLesson, error) {
	s.calls++
	return s.lessons, nil
}

type weekOverlayRepoStub struct {
	overlays []models.Overlay
	calls    int
}

func (s *weekOverlayRepoStub) ListRelevantForWeek(ctx context.Context, userID int64, groupID string, year, week int) ([]models.Overlay, error) {
	s.calls++
	return s.overlays, nil
}

type weekSyncerStub struct {
	diff  models.DiffResult
	err   error
	calls int
}

func (s *weekSyncerStub) SyncWeek(ctx context.Context, user *models.User, groupID string, year, week int) (models.DiffResult, error) {
	s.calls++
	return s.diff, s.err
}

type sessionProviderStub struct {
	ok  bool
	err error
}

func (s *sessionProviderStub) EnsureValidSession(ctx context.Context, user *models.User) (bool, error) {
	return s.ok, s.err
}

func cacheTestUser() *models.User {
	return &models.User{ID: 7, ChatID: 42, GroupID: "IU5-31B", ShowIET: true, ShowMilitary: true}
}

func newCacheService(entries *weekCacheRepoStub, lessons *weekLessonRepoStub, overlays *weekOverlayRepoStub, syncer *weekSyncerStub, sessions SessionProvider) *WeekCacheService {
	svc := NewWeekCacheService(entries, lessons, overlays, syncer, sessions, nil, nil, time.Hour, 24*time.Hour, 0, nil)
	svc.now = func() time.Time { return time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC) }
	return svc
}

func cachedEntry(t *testing.T, key models.WeekKey, cachedUntil, lastSynced time.Time) *models.WeekCacheEntry {
	t.Helper()
	tt := &models.Timetable{GroupID: key.GroupID, Year: key.Year, WeekNumber: key.WeekNumber, ContentHash: "cached"}
	payload, err := json.Marshal(tt)
	require.NoError(t, err)
	return &models.WeekCacheEntry{
		Owner:           key.Owner,
		GroupID:         key.GroupID,
		Year:            key.Year,
		WeekNumber:      key.WeekNumber,
		CachedTimetable: payload,
		ContentHash:     "cached",
		CachedUntil:     cachedUntil,
		LastSyncedAt:    lastSynced,
	}
}

func TestGetOrBuildServesLiveEntry(t *testing.T) {
	user := cacheTestUser()
	key := models.WeekKey{Owner: 7, GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	entries := &weekCacheRepoStub{entries: map[string]*models.WeekCacheEntry{
		key.String(): cachedEntry(t, key, now.Add(30*time.Minute), now.Add(-time.Hour)),
	}}
	lessons := &weekLessonRepoStub{}
	syncer := &weekSyncerStub{}
	svc := newCacheService(entries, lessons, &weekOverlayRepoStub{}, syncer, nil)

	tt, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cached", tt.ContentHash)
	assert.Zero(t, lessons.calls, "live entry never triggers a rebuild")
	assert.Zero(t, syncer.calls)
}

func TestGetOrBuildRebuildsExpiredEntry(t *testing.T) {
	user := cacheTestUser()
	key := models.WeekKey{Owner: 7, GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	entries := &weekCacheRepoStub{entries: map[string]*models.WeekCacheEntry{
		key.String(): cachedEntry(t, key, now.Add(-time.Minute), now.Add(-time.Hour)),
	}}
	lessons := &weekLessonRepoStub{lessons: []models.RawLesson{rawLesson("l1", 1, 1, "Calculus")}}
	overlays := &weekOverlayRepoStub{}
	syncer := &weekSyncerStub{}
	svc := newCacheService(entries, lessons, overlays, syncer, nil)

	tt, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, "cached", tt.ContentHash)
	assert.Equal(t, 1, overlays.calls)
	assert.Zero(t, syncer.calls, "fresh sync time suppresses the resync")

	personal := entries.entries[key.String()]
	require.NotNil(t, personal)
	assert.Equal(t, now.Add(time.Hour), personal.CachedUntil)
	assert.Equal(t, now.Add(-time.Hour), personal.LastSyncedAt, "sync time survives a pure rebuild")
}

func TestGetOrBuildStaleEntryTriggersResync(t *testing.T) {
	user := cacheTestUser()
	key := models.WeekKey{Owner: 7, GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	entries := &weekCacheRepoStub{entries: map[string]*models.WeekCacheEntry{
		key.String(): cachedEntry(t, key, now.Add(-time.Minute), now.Add(-48*time.Hour)),
	}}
	lessons := &weekLessonRepoStub{lessons: []models.RawLesson{rawLesson("l1", 1, 1, "Calculus")}}
	syncer := &weekSyncerStub{}
	svc := newCacheService(entries, lessons, &weekOverlayRepoStub{}, syncer, &sessionProviderStub{ok: true})

	_, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, 1, entries.touched)

	personal := entries.entries[key.String()]
	require.NotNil(t, personal)
	assert.Equal(t, now, personal.LastSyncedAt)
}

func TestGetOrBuildInvalidSessionSkipsResync(t *testing.T) {
	user := cacheTestUser()
	lessons := &weekLessonRepoStub{lessons: []models.RawLesson{rawLesson("l1", 1, 1, "Calculus")}}
	syncer := &weekSyncerStub{}
	svc := newCacheService(&weekCacheRepoStub{}, lessons, &weekOverlayRepoStub{}, syncer, &sessionProviderStub{ok: false})

	tt, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{})
	require.NoError(t, err)
	require.NotNil(t, tt)
	assert.Zero(t, syncer.calls, "read-only mode serves the mirror without syncing")
}

func TestGetOrBuildSyncFailureFallsBackToMirror(t *testing.T) {
	user := cacheTestUser()
	lessons := &weekLessonRepoStub{lessons: []models.RawLesson{rawLesson("l1", 1, 1, "Calculus")}}
	syncer := &weekSyncerStub{err: errors.New("upstream down")}
	svc := newCacheService(&weekCacheRepoStub{}, lessons, &weekOverlayRepoStub{}, syncer, &sessionProviderStub{ok: true})

	tt, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{})
	require.NoError(t, err)
	require.NotNil(t, tt)
	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, 1, tt.Day(1).LessonCount)
}

func TestGetOrBuildGrouplessUser(t *testing.T) {
	svc := newCacheService(&weekCacheRepoStub{}, &weekLessonRepoStub{}, &weekOverlayRepoStub{}, &weekSyncerStub{}, nil)

	_, err := svc.GetOrBuild(context.Background(), &models.User{ID: 7}, 2026, 10, BuildOptions{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGrouplessUser.Code, appErrors.FromError(err).Code)
}

func TestGetOrBuildCrossGroupUsesSharedEntry(t *testing.T) {
	user := cacheTestUser()
	lessons := &weekLessonRepoStub{lessons: []models.RawLesson{rawLesson("l1", 1, 1, "Calculus")}}
	overlays := &weekOverlayRepoStub{}
	entries := &weekCacheRepoStub{}
	svc := newCacheService(entries, lessons, overlays, &weekSyncerStub{}, &sessionProviderStub{ok: false})

	_, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{GroupID: "IU5-32B"})
	require.NoError(t, err)
	assert.Zero(t, overlays.calls, "shared entries are never personalized")

	shared := models.WeekKey{Owner: 0, GroupID: "IU5-32B", Year: 2026, WeekNumber: 10}
	assert.Contains(t, entries.entries, shared.String())
}

func TestGetOrBuildRefreshesCommonEntry(t *testing.T) {
	user := cacheTestUser()
	lessons := &weekLessonRepoStub{lessons: []models.RawLesson{rawLesson("l1", 1, 1, "Calculus")}}
	entries := &weekCacheRepoStub{}
	svc := newCacheService(entries, lessons, &weekOverlayRepoStub{}, &weekSyncerStub{}, &sessionProviderStub{ok: false})

	_, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{})
	require.NoError(t, err)

	personal := models.WeekKey{Owner: 7, GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	common := models.WeekKey{Owner: 0, GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	assert.Contains(t, entries.entries, personal.String())
	assert.Contains(t, entries.entries, common.String(), "the group-shared entry is kept alive alongside the personal one")
}

func TestGetOrBuildSyncFailureNothingMirrored(t *testing.T) {
	user := cacheTestUser()
	syncer := &weekSyncerStub{err: errors.New("upstream down")}
	svc := newCacheService(&weekCacheRepoStub{}, &weekLessonRepoStub{}, &weekOverlayRepoStub{}, syncer, &sessionProviderStub{ok: true})

	// An empty mirror offers nothing to fall back on; serving a fabricated
	// empty week would hide the outage from the caller.
	tt, err := svc.GetOrBuild(context.Background(), user, 2026, 10, BuildOptions{})
	require.Error(t, err)
	assert.Nil(t, tt)
	assert.Equal(t, appErrors.ErrUpstreamSync.Code, appErrors.FromError(err).Code)
}

func TestNewWeekCacheServiceDefaultsTTLs(t *testing.T) {
	svc := NewWeekCacheService(&weekCacheRepoStub{}, &weekLessonRepoStub{}, &weekOverlayRepoStub{}, &weekSyncerStub{}, nil, nil, nil, 0, 0, 0, nil)

	assert.Equal(t, time.Hour, svc.cacheTTL)
	assert.Equal(t, 24*time.Hour, svc.syncStaleness)
	assert.Equal(t, 10*time.Minute, svc.hotTTL, "a zero hot TTL would pin entries in the hot layer forever")
}
