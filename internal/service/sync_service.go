package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	"github.com/studtime/studtime/internal/upstream"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

type syncLessonRepository interface {
	// ListIDsForWeek returns ids of unexpired mirrored lessons.
	ListIDsForWeek(ctx context.Context, groupID string, year, week int) ([]string, error)
	// ApplySync upserts the fetched lessons, soft-expires the removed ids
	// and records the sync timestamp in one transaction.
	ApplySync(ctx context.Context, groupID string, year, week int, lessons []models.RawLesson, removedIDs []string, at time.Time) error
}

type sessionTokenSource interface {
	// SessionToken returns the stored upstream token, empty when the
	// source is public or the user is unknown.
	SessionToken(ctx context.Context, user *models.User) (string, error)
}

// SyncService mirrors upstream weeks and detects changes between successive
// synchronizations. Removed lessons are soft-expired, never deleted.
type SyncService struct {
	client  upstream.Client
	tokens  sessionTokenSource
	lessons syncLessonRepository
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewSyncService constructs the sync orchestrator.
func NewSyncService(client upstream.Client, tokens sessionTokenSource, lessons syncLessonRepository, metrics *MetricsService, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		client:  client,
		tokens:  tokens,
		lessons: lessons,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SyncWeek fetches one week from upstream, replaces the mirror and returns
// the diff against the previous synchronization.
func (s *SyncService) SyncWeek(ctx context.Context, user *models.User, groupID string, year, week int) (models.DiffResult, error) {
	if groupID == "" {
		return models.DiffResult{}, appErrors.Clone(appErrors.ErrGrouplessUser, "")
	}

	var token string
	if s.tokens != nil && user != nil {
		var err error
		token, err = s.tokens.SessionToken(ctx, user)
		if err != nil {
			return models.DiffResult{}, appErrors.Wrap(err, appErrors.ErrUpstreamSync.Code, appErrors.ErrUpstreamSync.Status, "failed to resolve session token")
		}
	}

	start := time.Now()
	payload, err := s.client.FetchWeek(ctx, token, year, week, groupID)
	if err != nil {
		return models.DiffResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveSync(time.Since(start))
	}

	now := s.now()
	lessons := make([]models.RawLesson, 0, len(payload.Lessons)+len(payload.IETLessons))
	lessons = append(lessons, payload.Lessons...)
	lessons = append(lessons, payload.IETLessons...)
	for i := range lessons {
		lessons[i].GroupID = groupID
		lessons[i].Year = year
		lessons[i].SyncedAt = now
	}

	prevIDs, err := s.lessons.ListIDsForWeek(ctx, groupID, year, week)
	if err != nil {
		return models.DiffResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mirrored lesson ids")
	}

	currIDs := make([]string, 0, len(lessons))
	for _, l := range lessons {
		currIDs = append(currIDs, l.ID)
	}
	diff := DiffLessonIDs(prevIDs, currIDs)

	if err := s.lessons.ApplySync(ctx, groupID, year, week, lessons, diff.Removed, now); err != nil {
		return models.DiffResult{}, appErrors.Wrap(err, appErrors.ErrUpstreamSync.Code, appErrors.ErrUpstreamSync.Status, "failed to apply sync")
	}

	if !diff.Empty() {
		s.logger.Info("schedule changed",
			zap.String("group_id", groupID),
			zap.Int("week", week),
			zap.Int("added", len(diff.Added)),
			zap.Int("removed", len(diff.Removed)))
	}
	return diff, nil
}
