package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

// secondReminderOffset is the fixed 10-minute heads-up used both for the
// second day-start reminder and for post-window reminders.
const secondReminderOffset = 10 * time.Minute

// secondReminderThreshold: a lead of at least 20 minutes earns the extra
// 10-minutes-before reminder.
const secondReminderThreshold = 1200

type notificationStore interface {
	CreateBatch(ctx context.Context, notifications []models.PendingNotification) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.PendingNotification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	DeleteScheduledForDay(ctx context.Context, userID int64, from, to time.Time) error
}

type preferenceStore interface {
	Find(ctx context.Context, userID int64) (*models.NotificationPreferences, error)
	Upsert(ctx context.Context, prefs *models.NotificationPreferences) error
}

type timetableProvider interface {
	GetOrBuild(ctx context.Context, user *models.User, year, week int, opts BuildOptions) (*models.Timetable, error)
}

type weekImageProvider interface {
	GetOrRender(ctx context.Context, tt *models.Timetable, styleName string) ([]byte, error)
}

// NotifyService turns a synthesized timetable into timed user notifications
// and persists them for the dispatch tick.
type NotifyService struct {
	store      notificationStore
	prefs      preferenceStore
	timetables timetableProvider
	images     weekImageProvider
	metrics    *MetricsService
	logger     *zap.Logger
	style      string
	now        func() time.Time
}

// NewNotifyService constructs the scheduler.
func NewNotifyService(store notificationStore, prefs preferenceStore, timetables timetableProvider, images weekImageProvider, metrics *MetricsService, style string, logger *zap.Logger) *NotifyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if style == "" {
		style = "default"
	}
	return &NotifyService{
		store:      store,
		prefs:      prefs,
		timetables: timetables,
		images:     images,
		metrics:    metrics,
		logger:     logger,
		style:      style,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ScheduleDaily computes today's notifications for one user from a finished
// timetable. Pure with respect to the timetable: no I/O, no randomness
// beyond row ids. Anything whose trigger already passed is dropped, never
// delivered late.
func ScheduleDaily(user *models.User, tt *models.Timetable, prefs models.NotificationPreferences, now time.Time) []models.PendingNotification {
	weekday := isoWeekday(now)
	if weekday > models.ClassDays {
		return nil
	}
	today := tt.Day(weekday)
	if today == nil {
		return nil
	}

	var out []models.PendingNotification
	visible := visibleLessons(today)

	if prefs.DayStartEnabled && len(visible) > 0 {
		first := visible[0]
		lead := time.Duration(prefs.LeadSeconds) * time.Second
		out = append(out, pending(user, models.NotifyDayStart,
			first.BeginTime.Add(-lead),
			fmt.Sprintf("Lessons start at %s: %s", first.BeginTime.Format("15:04"), first.Discipline)))
		if prefs.LeadSeconds >= secondReminderThreshold {
			out = append(out, pending(user, models.NotifyDayStartSecond,
				first.BeginTime.Add(-secondReminderOffset),
				fmt.Sprintf("10 minutes until %s", first.Discipline)))
		}
	}

	if prefs.BetweenEnabled {
		for i := 0; i+1 < len(visible); i++ {
			earlier, later := visible[i], visible[i+1]
			if later.TimeSlot-earlier.TimeSlot > 1 {
				out = append(out, pending(user, models.NotifyWindow,
					earlier.EndTime,
					fmt.Sprintf("Window until %s", later.BeginTime.Format("15:04"))))
				out = append(out, pending(user, models.NotifyBeforeLesson,
					later.BeginTime.Add(-secondReminderOffset),
					fmt.Sprintf("10 minutes until %s", later.Discipline)))
			} else {
				out = append(out, pending(user, models.NotifyUpNext,
					earlier.EndTime,
					fmt.Sprintf("Up next: %s", later.Discipline)))
			}
		}
	}

	nextDay := nextTeachingDay(tt, weekday)
	if prefs.NextDayEnabled && nextDay != nil {
		out = append(out, pending(user, models.NotifyNextDay,
			dayEnd(today),
			previewText(nextDay)))
	}
	if prefs.NextWeekEnabled && nextDay == nil {
		// The image is attached by the orchestrator; the plan only carries
		// the slot for it.
		out = append(out, pending(user, models.NotifyNextWeek,
			dayEnd(today),
			"Next week preview"))
	}

	filtered := out[:0]
	for _, n := range out {
		if n.SendAt.After(now) {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// PlanDaily builds, persists and returns today's notification plan for a
// user, attaching the next-week image when that branch fires.
func (s *NotifyService) PlanDaily(ctx context.Context, user *models.User) ([]models.PendingNotification, error) {
	now := s.now()
	year, week := now.ISOWeek()

	prefs, err := s.prefs.Find(ctx, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	if prefs == nil {
		return nil, nil
	}

	tt, err := s.timetables.GetOrBuild(ctx, user, year, week, BuildOptions{})
	if err != nil {
		return nil, err
	}

	plan := ScheduleDaily(user, tt, *prefs, now)
	for i := range plan {
		if plan[i].Kind != models.NotifyNextWeek || s.images == nil {
			continue
		}
		nextYear, nextWeek := now.AddDate(0, 0, 7).ISOWeek()
		nextTT, err := s.timetables.GetOrBuild(ctx, user, nextYear, nextWeek, BuildOptions{})
		if err != nil {
			s.logger.Warn("next week build failed for preview", zap.Int64("user", user.ID), zap.Error(err))
			continue
		}
		img, err := s.images.GetOrRender(ctx, nextTT, s.style)
		if err != nil {
			s.logger.Warn("next week image render failed", zap.Int64("user", user.ID), zap.Error(err))
			continue
		}
		plan[i].ImageBytes = img
	}

	if len(plan) == 0 {
		return nil, nil
	}

	// Re-planning the same day replaces the previous plan.
	dayStart := now.Truncate(24 * time.Hour)
	if err := s.store.DeleteScheduledForDay(ctx, user.ID, dayStart, dayStart.Add(24*time.Hour)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear stale plan")
	}
	if err := s.store.CreateBatch(ctx, plan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification plan")
	}
	for _, n := range plan {
		s.metrics.RecordNotification(string(n.Kind), "scheduled")
	}
	return plan, nil
}

// AlertScheduleChange records a change notice after a resync produced a
// non-empty diff.
func (s *NotifyService) AlertScheduleChange(ctx context.Context, user *models.User, week int, diff models.DiffResult) error {
	if diff.Empty() {
		return nil
	}
	prefs, err := s.prefs.Find(ctx, user.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	if prefs == nil || !prefs.ChangesEnabled {
		return nil
	}

	n := pending(user, models.NotifyScheduleChange, s.now().Add(time.Minute),
		fmt.Sprintf("Schedule for week %d changed: %d added, %d removed", week, len(diff.Added), len(diff.Removed)))
	if err := s.store.CreateBatch(ctx, []models.PendingNotification{n}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store change alert")
	}
	s.metrics.RecordNotification(string(models.NotifyScheduleChange), "scheduled")
	return nil
}

// Preferences returns stored preferences, falling back to defaults.
func (s *NotifyService) Preferences(ctx context.Context, userID int64) (*models.NotificationPreferences, error) {
	prefs, err := s.prefs.Find(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	if prefs == nil {
		prefs = &models.NotificationPreferences{UserID: userID, LeadSeconds: 1800}
	}
	return prefs, nil
}

// UpdatePreferences stores the new toggles.
func (s *NotifyService) UpdatePreferences(ctx context.Context, prefs *models.NotificationPreferences) error {
	if prefs.LeadSeconds < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "lead seconds must be non-negative")
	}
	if err := s.prefs.Upsert(ctx, prefs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store preferences")
	}
	return nil
}

func pending(user *models.User, kind models.NotificationKind, at time.Time, text string) models.PendingNotification {
	return models.PendingNotification{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		ChatTarget: user.ChatID,
		Kind:       kind,
		SendAt:     at,
		Text:       text,
	}
}

func visibleLessons(day *models.TimetableDay) []models.TimetableLesson {
	out := make([]models.TimetableLesson, 0, len(day.Lessons))
	for _, l := range day.Lessons {
		if l.Hidden {
			continue
		}
		out = append(out, l)
	}
	return out
}

func nextTeachingDay(tt *models.Timetable, after int) *models.TimetableDay {
	for wd := after + 1; wd <= models.ClassDays; wd++ {
		day := tt.Day(wd)
		if day != nil && !day.Empty() {
			return day
		}
	}
	return nil
}

func dayEnd(day *models.TimetableDay) time.Time {
	if day.Empty() {
		// Bounds are swapped for empty days; the larger one is the
		// theoretical day end.
		return day.BeginTime
	}
	return day.EndTime
}

func previewText(day *models.TimetableDay) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %d: %d lessons", day.Weekday, day.LessonCount)
	for _, l := range day.Lessons {
		if l.Hidden {
			continue
		}
		fmt.Fprintf(&b, "\n%s %s", l.BeginTime.Format("15:04"), l.Discipline)
	}
	return b.String()
}

func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
