package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studtime/studtime/internal/models"
)

type notificationStoreStub struct {
	created [][]models.PendingNotification
	deleted int
	err     error
}

func (s *notificationStoreStub) CreateBatch(ctx context.Context, notifications []models.PendingNotification) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, notifications)
	return nil
}

func (s *notificationStoreStub) ListDue(ctx context.Context, now time.Time, limit int) ([]models.PendingNotification, error) {
	return nil, nil
}

func (s *notificationStoreStub) MarkSent(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (s *notificationStoreStub) DeleteScheduledForDay(ctx context.Context, userID int64, from, to time.Time) error {
	s.deleted++
	return nil
}

type preferenceStoreStub struct {
	prefs *models.NotificationPreferences
	err   error
}

func (s *preferenceStoreStub) Find(ctx context.Context, userID int64) (*models.NotificationPreferences, error) {
	return s.prefs, s.err
}

func (s *preferenceStoreStub) Upsert(ctx context.Context, prefs *models.NotificationPreferences) error {
	s.prefs = prefs
	return nil
}

type timetableProviderStub struct {
	tt  *models.Timetable
	err error
}

func (s *timetableProviderStub) GetOrBuild(ctx context.Context, user *models.User, year, week int, opts BuildOptions) (*models.Timetable, error) {
	return s.tt, s.err
}

func notifyLesson(weekday, slot int, discipline string) models.TimetableLesson {
	begin, end := models.SlotSpan(2026, 10, weekday, slot)
	return models.TimetableLesson{
		LessonID:   fmt.Sprintf("l-%d-%d", weekday, slot),
		Weekday:    weekday,
		TimeSlot:   slot,
		BeginTime:  begin,
		EndTime:    end,
		Discipline: discipline,
	}
}

func notifyWeek(lessonsByDay map[int][]models.TimetableLesson) *models.Timetable {
	tt := &models.Timetable{GroupID: "IU5-31B", Year: 2026, WeekNumber: 10}
	for wd := 1; wd <= models.ClassDays; wd++ {
		day := models.TimetableDay{Weekday: wd}
		lessons := lessonsByDay[wd]
		if len(lessons) == 0 {
			first, last := models.DayBounds(2026, 10, wd)
			day.BeginTime, day.EndTime = last, first
		} else {
			day.Lessons = lessons
			day.LessonCount = len(lessons)
			day.BeginTime = lessons[0].BeginTime
			day.EndTime = lessons[len(lessons)-1].EndTime
		}
		tt.Days[wd-1] = day
	}
	return tt
}

func byKind(plan []models.PendingNotification) map[models.NotificationKind][]models.PendingNotification {
	out := make(map[models.NotificationKind][]models.PendingNotification)
	for _, n := range plan {
		out[n.Kind] = append(out[n.Kind], n)
	}
	return out
}

// Monday of ISO week 10, 2026, before the first slot begins.
var mondayMorning = time.Date(2026, time.March, 2, 6, 0, 0, 0, time.UTC)

func TestScheduleDailyDayStartWithSecondReminder(t *testing.T) {
	user := &models.User{ID: 7, ChatID: 42}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		1: {notifyLesson(1, 1, "Calculus")},
	})
	prefs := models.NotificationPreferences{DayStartEnabled: true, LeadSeconds: 1800}

	plan := ScheduleDaily(user, tt, prefs, mondayMorning)
	kinds := byKind(plan)

	require.Len(t, kinds[models.NotifyDayStart], 1)
	assert.Equal(t, "07:30", kinds[models.NotifyDayStart][0].SendAt.Format("15:04"))
	require.Len(t, kinds[models.NotifyDayStartSecond], 1)
	assert.Equal(t, "07:50", kinds[models.NotifyDayStartSecond][0].SendAt.Format("15:04"))
	assert.Equal(t, int64(42), plan[0].ChatTarget)
}

func TestScheduleDailyShortLeadSkipsSecondReminder(t *testing.T) {
	user := &models.User{ID: 7, ChatID: 42}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		1: {notifyLesson(1, 1, "Calculus")},
	})
	prefs := models.NotificationPreferences{DayStartEnabled: true, LeadSeconds: 600}

	plan := ScheduleDaily(user, tt, prefs, mondayMorning)
	kinds := byKind(plan)

	require.Len(t, kinds[models.NotifyDayStart], 1)
	assert.Equal(t, "07:50", kinds[models.NotifyDayStart][0].SendAt.Format("15:04"))
	assert.Empty(t, kinds[models.NotifyDayStartSecond])
}

func TestScheduleDailyBetweenLessons(t *testing.T) {
	user := &models.User{ID: 7, ChatID: 42}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		1: {
			notifyLesson(1, 1, "Calculus"),
			notifyLesson(1, 2, "Physics"),
			notifyLesson(1, 4, "History"),
		},
	})
	prefs := models.NotificationPreferences{BetweenEnabled: true}

	plan := ScheduleDaily(user, tt, prefs, mondayMorning)
	kinds := byKind(plan)

	// Slots 1 and 2 are adjacent, slots 2 and 4 leave a window.
	require.Len(t, kinds[models.NotifyUpNext], 1)
	assert.Equal(t, "09:30", kinds[models.NotifyUpNext][0].SendAt.Format("15:04"))
	assert.Contains(t, kinds[models.NotifyUpNext][0].Text, "Physics")

	require.Len(t, kinds[models.NotifyWindow], 1)
	assert.Equal(t, "11:10", kinds[models.NotifyWindow][0].SendAt.Format("15:04"))
	require.Len(t, kinds[models.NotifyBeforeLesson], 1)
	assert.Equal(t, "13:10", kinds[models.NotifyBeforeLesson][0].SendAt.Format("15:04"))
	assert.Contains(t, kinds[models.NotifyBeforeLesson][0].Text, "History")
}

func TestScheduleDailyNextDayPreview(t *testing.T) {
	user := &models.User{ID: 7, ChatID: 42}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		1: {notifyLesson(1, 1, "Calculus")},
		2: {notifyLesson(2, 2, "Physics")},
	})
	prefs := models.NotificationPreferences{NextDayEnabled: true, NextWeekEnabled: true}

	plan := ScheduleDaily(user, tt, prefs, mondayMorning)
	kinds := byKind(plan)

	require.Len(t, kinds[models.NotifyNextDay], 1)
	assert.Equal(t, "09:30", kinds[models.NotifyNextDay][0].SendAt.Format("15:04"), "fires at the end of today's last lesson")
	assert.Contains(t, kinds[models.NotifyNextDay][0].Text, "Physics")
	assert.Empty(t, kinds[models.NotifyNextWeek], "next-week only fires when no later teaching day remains")
}

func TestScheduleDailyNextWeekOnLastTeachingDay(t *testing.T) {
	user := &models.User{ID: 7, ChatID: 42}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		6: {notifyLesson(6, 1, "Calculus")},
	})
	prefs := models.NotificationPreferences{NextDayEnabled: true, NextWeekEnabled: true}

	saturdayMorning := time.Date(2026, time.March, 7, 6, 0, 0, 0, time.UTC)
	plan := ScheduleDaily(user, tt, prefs, saturdayMorning)
	kinds := byKind(plan)

	assert.Empty(t, kinds[models.NotifyNextDay])
	require.Len(t, kinds[models.NotifyNextWeek], 1)
	assert.Equal(t, "09:30", kinds[models.NotifyNextWeek][0].SendAt.Format("15:04"))
}

func TestScheduleDailyDropsPastDue(t *testing.T) {
	user := &models.User{ID: 7, ChatID: 42}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		1: {notifyLesson(1, 1, "Calculus"), notifyLesson(1, 2, "Physics")},
	})
	prefs := models.NotificationPreferences{DayStartEnabled: true, LeadSeconds: 1800, BetweenEnabled: true}

	// Mid-morning: the day-start reminders already passed, the up-next
	// trigger at 09:30 has not.
	midMorning := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	plan := ScheduleDaily(user, tt, prefs, midMorning)
	kinds := byKind(plan)

	assert.Empty(t, kinds[models.NotifyDayStart])
	assert.Empty(t, kinds[models.NotifyDayStartSecond])
	require.Len(t, kinds[models.NotifyUpNext], 1)
}

func TestScheduleDailySundayIsQuiet(t *testing.T) {
	user := &models.User{ID: 7, ChatID: 42}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		1: {notifyLesson(1, 1, "Calculus")},
	})
	prefs := models.NotificationPreferences{DayStartEnabled: true, LeadSeconds: 1800}

	sunday := time.Date(2026, time.March, 8, 6, 0, 0, 0, time.UTC)
	assert.Nil(t, ScheduleDaily(user, tt, prefs, sunday))
}

func TestPlanDailyPersistsPlan(t *testing.T) {
	store := &notificationStoreStub{}
	prefs := &preferenceStoreStub{prefs: &models.NotificationPreferences{
		UserID:          7,
		DayStartEnabled: true,
		LeadSeconds:     1800,
	}}
	tt := notifyWeek(map[int][]models.TimetableLesson{
		1: {notifyLesson(1, 1, "Calculus")},
	})
	svc := NewNotifyService(store, prefs, &timetableProviderStub{tt: tt}, nil, nil, "default", nil)
	svc.now = func() time.Time { return mondayMorning }

	plan, err := svc.PlanDaily(context.Background(), &models.User{ID: 7, ChatID: 42, GroupID: "IU5-31B"})
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, 1, store.deleted, "stale same-day plan is cleared first")
	require.Len(t, store.created, 1)
	assert.Len(t, store.created[0], 2)
}

func TestPlanDailyNoPreferencesNoPlan(t *testing.T) {
	store := &notificationStoreStub{}
	svc := NewNotifyService(store, &preferenceStoreStub{}, &timetableProviderStub{}, nil, nil, "default", nil)
	svc.now = func() time.Time { return mondayMorning }

	plan, err := svc.PlanDaily(context.Background(), &models.User{ID: 7})
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Empty(t, store.created)
}

func TestAlertScheduleChange(t *testing.T) {
	store := &notificationStoreStub{}
	prefs := &preferenceStoreStub{prefs: &models.NotificationPreferences{UserID: 7, ChangesEnabled: true}}
	svc := NewNotifyService(store, prefs, &timetableProviderStub{}, nil, nil, "default", nil)
	svc.now = func() time.Time { return mondayMorning }

	diff := models.DiffResult{Added: []string{"l1"}, Removed: []string{"l2", "l3"}}
	require.NoError(t, svc.AlertScheduleChange(context.Background(), &models.User{ID: 7, ChatID: 42}, 10, diff))

	require.Len(t, store.created, 1)
	require.Len(t, store.created[0], 1)
	n := store.created[0][0]
	assert.Equal(t, models.NotifyScheduleChange, n.Kind)
	assert.Contains(t, n.Text, "1 added, 2 removed")
	assert.True(t, n.SendAt.After(mondayMorning))
}

func TestAlertScheduleChangeRespectsToggle(t *testing.T) {
	store := &notificationStoreStub{}
	prefs := &preferenceStoreStub{prefs: &models.NotificationPreferences{UserID: 7, ChangesEnabled: false}}
	svc := NewNotifyService(store, prefs, &timetableProviderStub{}, nil, nil, "default", nil)

	diff := models.DiffResult{Added: []string{"l1"}}
	require.NoError(t, svc.AlertScheduleChange(context.Background(), &models.User{ID: 7}, 10, diff))
	assert.Empty(t, store.created)
}
