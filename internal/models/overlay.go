package models

import "time"

// Overlay is a user-authored customization of one lesson occurrence, or a
// fully synthetic lesson when it targets nothing.
//
// Content fields are pointers: nil means "inherit from the underlying
// lesson", while a set pointer overrides it even when the value is the
// type's zero. A deliberately cleared room is therefore distinguishable
// from an untouched one.
type Overlay struct {
	ID             string     `db:"id" json:"id"`
	OwnerUserID    int64      `db:"owner_user_id" json:"owner_user_id"`
	TargetLessonID *string    `db:"target_lesson_id" json:"target_lesson_id,omitempty"`
	TargetSeriesID *string    `db:"target_series_id" json:"target_series_id,omitempty"`
	Year           int        `db:"year" json:"year"`
	WeekNumber     int        `db:"week_number" json:"week_number"`
	Weekday        int        `db:"weekday" json:"weekday"`
	TimeSlot       int        `db:"time_slot" json:"time_slot"`
	BeginTime      time.Time  `db:"begin_time" json:"begin_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	Enabled        bool       `db:"enabled" json:"enabled"`
	Hidden         bool       `db:"hidden" json:"hidden"`
	Discipline     *string    `db:"discipline" json:"discipline,omitempty"`
	Kind           *LessonKind `db:"kind" json:"kind,omitempty"`
	TeacherName    *string    `db:"teacher_name" json:"teacher_name,omitempty"`
	Online         *bool      `db:"online" json:"online,omitempty"`
	Building       *string    `db:"building" json:"building,omitempty"`
	Room           *string    `db:"room" json:"room,omitempty"`
	Subgroup       *int       `db:"subgroup" json:"subgroup,omitempty"`
	Comment        *string    `db:"comment" json:"comment,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsSynthetic reports whether the overlay creates a lesson from scratch
// instead of customizing an upstream one.
func (o *Overlay) IsSynthetic() bool {
	return o.TargetLessonID == nil && o.TargetSeriesID == nil
}
