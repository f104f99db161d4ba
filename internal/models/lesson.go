package models

import (
	"time"

	"github.com/lib/pq"
)

// LessonKind classifies a scheduled occurrence.
type LessonKind string

const (
	KindLecture  LessonKind = "lecture"
	KindPractice LessonKind = "practice"
	KindLab      LessonKind = "lab"
	KindOther    LessonKind = "other"
	KindMilitary LessonKind = "military"
	KindExam     LessonKind = "exam"
	KindConsult  LessonKind = "consult"
	KindWindow   LessonKind = "window"
	KindUnknown  LessonKind = "unknown"
)

// RawLesson is one scheduled occurrence mirrored from the upstream source.
// Rows are owned by the sync path; everything else only reads them.
type RawLesson struct {
	ID          string         `db:"id" json:"id"`
	SeriesID    string         `db:"series_id" json:"series_id"`
	GroupID     string         `db:"group_id" json:"group_id"`
	Year        int            `db:"year" json:"year"`
	WeekNumber  int            `db:"week_number" json:"week_number"`
	Weekday     int            `db:"weekday" json:"weekday"`
	TimeSlot    int            `db:"time_slot" json:"time_slot"`
	BeginTime   time.Time      `db:"begin_time" json:"begin_time"`
	EndTime     time.Time      `db:"end_time" json:"end_time"`
	Discipline  string         `db:"discipline" json:"discipline"`
	Kind        LessonKind     `db:"kind" json:"kind"`
	TeacherName string         `db:"teacher_name" json:"teacher_name"`
	Online      bool           `db:"online" json:"online"`
	Building    string         `db:"building" json:"building"`
	Room        string         `db:"room" json:"room"`
	Subgroup    *int           `db:"subgroup" json:"subgroup,omitempty"`
	GroupRefs   pq.StringArray `db:"group_refs" json:"group_refs,omitempty"`
	FlowRefs    pq.StringArray `db:"flow_refs" json:"flow_refs,omitempty"`
	ValidUntil  time.Time      `db:"valid_until" json:"valid_until"`
	SyncedAt    time.Time      `db:"synced_at" json:"synced_at"`
}

// IsIET reports whether the lesson belongs to an individual teaching stream
// rather than regular group scheduling.
func (l *RawLesson) IsIET() bool {
	return len(l.FlowRefs) > 0
}

// SynthesisFilters narrows which raw lessons a user actually sees.
// The zero value means "show everything".
type SynthesisFilters struct {
	Subgroup        int  `json:"subgroup"`
	IncludeIET      bool `json:"include_iet"`
	IncludeMilitary bool `json:"include_military"`
}

// Matches applies the subgroup/IET/military filters to a lesson's attributes.
func (f SynthesisFilters) Matches(subgroup *int, iet bool, kind LessonKind) bool {
	if f.Subgroup > 0 && subgroup != nil && *subgroup != f.Subgroup {
		return false
	}
	if iet && !f.IncludeIET {
		return false
	}
	if kind == KindMilitary && !f.IncludeMilitary {
		return false
	}
	return true
}
