package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

// BuildOptions tunes a single GetOrBuild call.
type BuildOptions struct {
	// IgnoreCache forces a fresh synthesis even when a live entry exists.
	IgnoreCache bool
	// IgnoreUpstreamSync suppresses the resync regardless of staleness.
	IgnoreUpstreamSync bool
	// ForceSync triggers a resync even inside the staleness window.
	ForceSync bool
	// GroupID, when set, requests another group's shared (owner=0) schedule
	// instead of the caller's personalized one.
	GroupID string
}

type weekCacheRepository interface {
	Find(ctx context.Context, key models.WeekKey) (*models.WeekCacheEntry, error)
	Upsert(ctx context.Context, entry *models.WeekCacheEntry) error
	TouchSyncedAt(ctx context.Context, groupID string, year, week int, at time.Time) error
}

type weekLessonRepository interface {
	ListForWeekWithRelocations(ctx context.Context, userID int64, groupID string, year, week int) ([]models.RawLesson, error)
}

type weekOverlayRepository interface {
	ListRelevantForWeek(ctx context.Context, userID int64, groupID string, year, week int) ([]models.Overlay, error)
}

type weekSyncer interface {
	SyncWeek(ctx context.Context, user *models.User, groupID string, year, week int) (models.DiffResult, error)
}

// SessionProvider validates the user's upstream session. A false result
// means "serve read-only from cache, skip resync".
type SessionProvider interface {
	EnsureValidSession(ctx context.Context, user *models.User) (bool, error)
}

type hotCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// WeekCacheService wraps the synthesis engine with TTL-based reuse. One
// synthesized timetable is authoritative per cache key at a time; concurrent
// rebuilds race last-writer-wins, which is harmless because synthesis is
// deterministic for identical inputs.
type WeekCacheService struct {
	entries  weekCacheRepository
	lessons  weekLessonRepository
	overlays weekOverlayRepository
	syncer   weekSyncer
	sessions SessionProvider
	hot      hotCache
	metrics  *MetricsService
	logger   *zap.Logger

	cacheTTL      time.Duration
	syncStaleness time.Duration
	hotTTL        time.Duration

	now func() time.Time
}

// NewWeekCacheService constructs the cache manager.
func NewWeekCacheService(
	entries weekCacheRepository,
	lessons weekLessonRepository,
	overlays weekOverlayRepository,
	syncer weekSyncer,
	sessions SessionProvider,
	hot hotCache,
	metrics *MetricsService,
	cacheTTL, syncStaleness, hotTTL time.Duration,
	logger *zap.Logger,
) *WeekCacheService {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if syncStaleness <= 0 {
		syncStaleness = 24 * time.Hour
	}
	if hotTTL <= 0 {
		hotTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeekCacheService{
		entries:       entries,
		lessons:       lessons,
		overlays:      overlays,
		syncer:        syncer,
		sessions:      sessions,
		hot:           hot,
		metrics:       metrics,
		cacheTTL:      cacheTTL,
		syncStaleness: syncStaleness,
		hotTTL:        hotTTL,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetOrBuild returns the timetable for one user and week, reusing a live
// cached entry when possible and rebuilding otherwise.
func (s *WeekCacheService) GetOrBuild(ctx context.Context, user *models.User, year, week int, opts BuildOptions) (*models.Timetable, error) {
	key := s.cacheKey(user, year, week, opts)
	if key.GroupID == "" {
		return nil, appErrors.Clone(appErrors.ErrGrouplessUser, "no group id resolvable")
	}
	now := s.now()

	if !opts.IgnoreCache {
		if tt := s.lookup(ctx, key, now); tt != nil {
			return tt, nil
		}
	}

	// Find returns (nil, nil) for an absent row.
	entry, err := s.entries.Find(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load week cache entry")
	}

	synced := false
	var syncErr error
	if !opts.IgnoreUpstreamSync {
		synced, syncErr = s.maybeResync(ctx, user, key, entry, opts, now)
	}

	tt, err := s.rebuild(ctx, user, key, opts)
	if err != nil {
		return nil, err
	}

	if syncErr != nil {
		if entry == nil && tt.Empty() {
			// Nothing was ever mirrored for this week; an empty fabricated
			// timetable would mask the outage.
			return nil, appErrors.Wrap(syncErr, appErrors.ErrUpstreamSync.Code, appErrors.ErrUpstreamSync.Status, "upstream sync failed with nothing mirrored")
		}
		// Stale-cache fallback: a failed resync degrades to whatever we
		// already mirrored, with no error when lessons exist.
		s.logger.Warn("upstream resync failed, serving mirrored data",
			zap.String("group_id", key.GroupID), zap.Int("week", week), zap.Error(syncErr))
	}

	if err := s.store(ctx, key, entry, tt, now, synced); err != nil {
		s.logger.Warn("failed to persist week cache entry", zap.String("key", key.String()), zap.Error(err))
	}

	if key.Owner != 0 {
		s.ensureCommonEntry(ctx, user, key, now)
	}
	return tt, nil
}

// ensureCommonEntry keeps the group-shared (owner=0) entry alive next to the
// personal one, so unauthenticated or cross-group lookups never need
// per-user state. Best effort: failures only log.
func (s *WeekCacheService) ensureCommonEntry(ctx context.Context, user *models.User, personal models.WeekKey, now time.Time) {
	common := models.WeekKey{Owner: 0, GroupID: personal.GroupID, Year: personal.Year, WeekNumber: personal.WeekNumber}

	entry, err := s.entries.Find(ctx, common)
	if err == nil && entry != nil && entry.CachedUntil.After(now) {
		return
	}

	tt, err := s.rebuild(ctx, user, common, BuildOptions{})
	if err != nil {
		s.logger.Warn("failed to rebuild common entry", zap.String("key", common.String()), zap.Error(err))
		return
	}
	if err := s.store(ctx, common, entry, tt, now, false); err != nil {
		s.logger.Warn("failed to store common entry", zap.String("key", common.String()), zap.Error(err))
	}
}

func (s *WeekCacheService) cacheKey(user *models.User, year, week int, opts BuildOptions) models.WeekKey {
	if opts.GroupID != "" && opts.GroupID != user.GroupID {
		// Cross-group lookups use the shared, non-personalized entry.
		return models.WeekKey{Owner: 0, GroupID: opts.GroupID, Year: year, WeekNumber: week}
	}
	return models.WeekKey{Owner: user.ID, GroupID: user.GroupID, Year: year, WeekNumber: week}
}

func (s *WeekCacheService) lookup(ctx context.Context, key models.WeekKey, now time.Time) *models.Timetable {
	if s.hot != nil {
		var tt models.Timetable
		if hit, err := s.hot.Get(ctx, "timetable:"+key.String(), &tt); err == nil && hit {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true, 0)
			}
			return &tt
		}
	}

	entry, err := s.entries.Find(ctx, key)
	if err != nil || entry == nil || len(entry.CachedTimetable) == 0 {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, 0)
		}
		return nil
	}
	if !entry.CachedUntil.After(now) {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, 0)
		}
		return nil
	}

	var tt models.Timetable
	if err := json.Unmarshal(entry.CachedTimetable, &tt); err != nil {
		s.logger.Warn("corrupt cached timetable, rebuilding", zap.String("key", key.String()), zap.Error(err))
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(true, 0)
	}
	return &tt
}

func (s *WeekCacheService) maybeResync(ctx context.Context, user *models.User, key models.WeekKey, entry *models.WeekCacheEntry, opts BuildOptions, now time.Time) (bool, error) {
	stale := entry == nil || entry.LastSyncedAt.IsZero() || now.Sub(entry.LastSyncedAt) > s.syncStaleness
	if !stale && !opts.ForceSync {
		return false, nil
	}

	if s.sessions != nil {
		ok, err := s.sessions.EnsureValidSession(ctx, user)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrUpstreamSync.Code, appErrors.ErrUpstreamSync.Status, "session check failed")
		}
		if !ok {
			// Read-only mode: keep serving the mirror.
			return false, nil
		}
	}

	if _, err := s.syncer.SyncWeek(ctx, user, key.GroupID, key.Year, key.WeekNumber); err != nil {
		return false, err
	}
	if err := s.entries.TouchSyncedAt(ctx, key.GroupID, key.Year, key.WeekNumber, now); err != nil {
		s.logger.Warn("failed to record sync time", zap.String("key", key.String()), zap.Error(err))
	}
	return true, nil
}

func (s *WeekCacheService) rebuild(ctx context.Context, user *models.User, key models.WeekKey, opts BuildOptions) (*models.Timetable, error) {
	lessons, err := s.lessons.ListForWeekWithRelocations(ctx, key.Owner, key.GroupID, key.Year, key.WeekNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load raw lessons")
	}

	var overlays []models.Overlay
	filters := models.SynthesisFilters{IncludeIET: true, IncludeMilitary: true}
	if key.Owner != 0 {
		overlays, err = s.overlays.ListRelevantForWeek(ctx, key.Owner, key.GroupID, key.Year, key.WeekNumber)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overlays")
		}
		filters = user.Filters()
	}

	start := time.Now()
	tt, err := Synthesize(SynthesisInput{
		GroupID:    key.GroupID,
		Year:       key.Year,
		WeekNumber: key.WeekNumber,
		RawLessons: lessons,
		Overlays:   overlays,
		Filters:    filters,
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveSynthesis(time.Since(start))
	}
	return tt, nil
}

func (s *WeekCacheService) store(ctx context.Context, key models.WeekKey, prev *models.WeekCacheEntry, tt *models.Timetable, now time.Time, synced bool) error {
	payload, err := json.Marshal(tt)
	if err != nil {
		return err
	}

	entry := &models.WeekCacheEntry{
		Owner:           key.Owner,
		GroupID:         key.GroupID,
		Year:            key.Year,
		WeekNumber:      key.WeekNumber,
		CachedTimetable: payload,
		ContentHash:     tt.ContentHash,
		CachedUntil:     now.Add(s.cacheTTL),
	}
	switch {
	case synced:
		entry.LastSyncedAt = now
	case prev != nil:
		entry.LastSyncedAt = prev.LastSyncedAt
	}
	if err := s.entries.Upsert(ctx, entry); err != nil {
		return err
	}

	if s.hot != nil {
		_ = s.hot.Set(ctx, "timetable:"+key.String(), tt, s.hotTTL)
	}
	return nil
}
