package models

import (
	"fmt"
	"time"
)

// CustomizationState tags how a synthesized lesson relates to its upstream
// original.
type CustomizationState string

const (
	CustomizationNone     CustomizationState = ""
	CustomizationAdded    CustomizationState = "added"
	CustomizationModified CustomizationState = "modified"
	CustomizationRemoved  CustomizationState = "removed"
)

// TimetableLesson is the display unit produced by synthesis. A lesson never
// appears in two slots; colliding lessons are folded into the Alternates of
// a single representative.
type TimetableLesson struct {
	LessonID    string     `json:"lesson_id"`
	SeriesID    string     `json:"series_id,omitempty"`
	OverlayID   string     `json:"overlay_id,omitempty"`
	Year        int        `json:"year"`
	WeekNumber  int        `json:"week_number"`
	Weekday     int        `json:"weekday"`
	TimeSlot    int        `json:"time_slot"`
	BeginTime   time.Time  `json:"begin_time"`
	EndTime     time.Time  `json:"end_time"`
	Discipline  string     `json:"discipline"`
	Kind        LessonKind `json:"kind"`
	TeacherName string     `json:"teacher_name,omitempty"`
	Online      bool       `json:"online"`
	Building    string     `json:"building,omitempty"`
	Room        string     `json:"room,omitempty"`
	Subgroup    *int       `json:"subgroup,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	Hidden      bool       `json:"hidden"`

	// Original is the pre-overlay snapshot, nil for synthetic lessons.
	Original      *TimetableLesson   `json:"original,omitempty"`
	Customization CustomizationState `json:"customization,omitempty"`
	Alternates    []TimetableLesson  `json:"alternates,omitempty"`
}

// FromRawLesson builds the display unit for an untouched upstream lesson.
func FromRawLesson(l RawLesson) TimetableLesson {
	return TimetableLesson{
		LessonID:    l.ID,
		SeriesID:    l.SeriesID,
		Year:        l.Year,
		WeekNumber:  l.WeekNumber,
		Weekday:     l.Weekday,
		TimeSlot:    l.TimeSlot,
		BeginTime:   l.BeginTime,
		EndTime:     l.EndTime,
		Discipline:  l.Discipline,
		Kind:        l.Kind,
		TeacherName: l.TeacherName,
		Online:      l.Online,
		Building:    l.Building,
		Room:        l.Room,
		Subgroup:    l.Subgroup,
	}
}

// TimetableDay holds one class day. An empty day carries BeginTime after
// EndTime as a sentinel understood by consumers.
type TimetableDay struct {
	Weekday     int               `json:"weekday"`
	BeginTime   time.Time         `json:"begin_time"`
	EndTime     time.Time         `json:"end_time"`
	Lessons     []TimetableLesson `json:"lessons"`
	LessonCount int               `json:"lesson_count"`
}

// Empty reports whether the day has no lessons.
func (d *TimetableDay) Empty() bool {
	return d.LessonCount == 0
}

// Timetable is the synthesized per-group, per-week view. It is immutable
// once the content hash is attached; a re-synthesis supersedes it.
type Timetable struct {
	WeekID      string          `json:"week_id"`
	GroupID     string          `json:"group_id"`
	Year        int             `json:"year"`
	WeekNumber  int             `json:"week_number"`
	ContentHash string          `json:"content_hash"`
	Days        [ClassDays]TimetableDay `json:"days"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Empty reports whether no day of the week carries a lesson.
func (t *Timetable) Empty() bool {
	for i := range t.Days {
		if !t.Days[i].Empty() {
			return false
		}
	}
	return true
}

// Day returns the day for a 1-based weekday, or nil when out of range.
func (t *Timetable) Day(weekday int) *TimetableDay {
	if !ValidWeekday(weekday) {
		return nil
	}
	return &t.Days[weekday-1]
}

// WeekKey identifies a cached week: owner 0 denotes the group-shared entry
// that personalized synthesis never touches.
type WeekKey struct {
	Owner      int64  `json:"owner"`
	GroupID    string `json:"group_id"`
	Year       int    `json:"year"`
	WeekNumber int    `json:"week_number"`
}

// String renders the key in a form usable as a cache key suffix.
func (k WeekKey) String() string {
	return fmt.Sprintf("%d:%s:%d:%d", k.Owner, k.GroupID, k.Year, k.WeekNumber)
}

// WeekCacheEntry is the persisted cache row for one week key.
type WeekCacheEntry struct {
	Owner           int64     `db:"owner" json:"owner"`
	GroupID         string    `db:"group_id" json:"group_id"`
	Year            int       `db:"year" json:"year"`
	WeekNumber      int       `db:"week_number" json:"week_number"`
	CachedTimetable []byte    `db:"cached_timetable" json:"-"`
	ContentHash     string    `db:"content_hash" json:"content_hash"`
	CachedUntil     time.Time `db:"cached_until" json:"cached_until"`
	LastSyncedAt    time.Time `db:"last_synced_at" json:"last_synced_at"`
}

// Key returns the composite cache key of the entry.
func (e *WeekCacheEntry) Key() WeekKey {
	return WeekKey{Owner: e.Owner, GroupID: e.GroupID, Year: e.Year, WeekNumber: e.WeekNumber}
}

// RenderedImage is a content-addressed raster of a timetable. Its lifecycle
// is independent from week cache entries on purpose: identical content must
// never re-render, even across a week-cache expiry.
type RenderedImage struct {
	StyleName   string    `db:"style_name" json:"style_name"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	Bytes       []byte    `db:"bytes" json:"-"`
	ValidUntil  time.Time `db:"valid_until" json:"valid_until"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
