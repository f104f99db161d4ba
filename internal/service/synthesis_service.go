package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

// SynthesisInput is everything the engine needs to build one week. Callers
// are expected to include relocation sources in RawLessons: lessons whose
// native week differs but which an overlay moves into this week.
type SynthesisInput struct {
	GroupID    string
	Year       int
	WeekNumber int
	RawLessons []models.RawLesson
	Overlays   []models.Overlay
	Filters    models.SynthesisFilters
}

// Synthesize merges raw lessons with user overlays into a display-ready
// timetable. Pure given its inputs: identical inputs produce identical
// content hashes.
func Synthesize(in SynthesisInput) (*models.Timetable, error) {
	if in.GroupID == "" {
		return nil, appErrors.Clone(appErrors.ErrGrouplessUser, "cannot synthesize without a group")
	}

	tt := &models.Timetable{
		WeekID:      fmt.Sprintf("%s-%d-%d", in.GroupID, in.Year, in.WeekNumber),
		GroupID:     in.GroupID,
		Year:        in.Year,
		WeekNumber:  in.WeekNumber,
		GeneratedAt: time.Now().UTC(),
	}
	for i := 0; i < models.ClassDays; i++ {
		begin, end := models.DayBounds(in.Year, in.WeekNumber, i+1)
		tt.Days[i] = models.TimetableDay{Weekday: i + 1, BeginTime: begin, EndTime: end}
	}

	byLesson := make(map[string]models.Overlay, len(in.Overlays))
	for _, o := range in.Overlays {
		if !o.Enabled || o.TargetLessonID == nil {
			continue
		}
		byLesson[*o.TargetLessonID] = o
	}

	for _, raw := range in.RawLessons {
		if !in.Filters.Matches(raw.Subgroup, raw.IsIET(), raw.Kind) {
			continue
		}

		overlay, customized := byLesson[raw.ID]
		if customized && overlay.WeekNumber != in.WeekNumber {
			// Relocated to another week; that week's synthesis picks it up.
			continue
		}
		if !customized && raw.WeekNumber != in.WeekNumber {
			// Loaded only as a relocation source.
			continue
		}

		lesson := models.FromRawLesson(raw)
		if customized {
			lesson = ApplyOverlay(&lesson, overlay)
			// The overlay may have moved the lesson to another subgroup.
			if !in.Filters.Matches(lesson.Subgroup, raw.IsIET(), lesson.Kind) {
				continue
			}
		}
		place(tt, lesson)
	}

	for _, o := range in.Overlays {
		if !o.Enabled || !o.IsSynthetic() || o.WeekNumber != in.WeekNumber {
			continue
		}
		place(tt, ApplyOverlay(nil, o))
	}

	for i := range tt.Days {
		day := &tt.Days[i]
		sort.SliceStable(day.Lessons, func(a, b int) bool {
			return day.Lessons[a].TimeSlot < day.Lessons[b].TimeSlot
		})
		if day.LessonCount == 0 {
			day.BeginTime, day.EndTime = day.EndTime, day.BeginTime
		}
	}

	hash, err := contentHash(tt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash timetable")
	}
	tt.ContentHash = hash
	return tt, nil
}

// place inserts a lesson into its day, collapsing slot collisions into the
// alternates of a single representative. Arrival order decides which lesson
// represents the slot; alternates are unordered for display.
func place(tt *models.Timetable, lesson models.TimetableLesson) {
	day := tt.Day(lesson.Weekday)
	if day == nil {
		return
	}

	kept := day.Lessons[:0]
	for _, existing := range day.Lessons {
		if existing.TimeSlot != lesson.TimeSlot {
			kept = append(kept, existing)
			continue
		}
		lesson.Alternates = append(lesson.Alternates, existing.Alternates...)
		existing.Alternates = nil
		lesson.Alternates = append(lesson.Alternates, existing)
		day.LessonCount--
	}
	day.Lessons = append(kept, lesson)
	day.LessonCount++

	if day.LessonCount == 1 {
		day.BeginTime = lesson.BeginTime
		day.EndTime = lesson.EndTime
		return
	}
	if lesson.BeginTime.Before(day.BeginTime) {
		day.BeginTime = lesson.BeginTime
	}
	if lesson.EndTime.After(day.EndTime) {
		day.EndTime = lesson.EndTime
	}
}

// hashedLesson mirrors the visible content of a lesson. Database bookkeeping
// (overlay row ids, sync timestamps) stays out so it never perturbs caching.
type hashedLesson struct {
	LessonID   string                    `json:"l"`
	TimeSlot   int                       `json:"s"`
	Weekday    int                       `json:"w"`
	Begin      int64                     `json:"b"`
	End        int64                     `json:"e"`
	Discipline string                    `json:"d"`
	Kind       models.LessonKind         `json:"k"`
	Teacher    string                    `json:"t"`
	Online     bool                      `json:"o"`
	Building   string                    `json:"bl"`
	Room       string                    `json:"r"`
	Subgroup   int                       `json:"sg"`
	Hidden     bool                      `json:"h"`
	State      models.CustomizationState `json:"st"`
	Comment    string                    `json:"c"`
	Alternates []hashedLesson            `json:"a,omitempty"`
}

func toHashed(l models.TimetableLesson) hashedLesson {
	h := hashedLesson{
		LessonID:   l.LessonID,
		TimeSlot:   l.TimeSlot,
		Weekday:    l.Weekday,
		Begin:      l.BeginTime.Unix(),
		End:        l.EndTime.Unix(),
		Discipline: l.Discipline,
		Kind:       l.Kind,
		Teacher:    l.TeacherName,
		Online:     l.Online,
		Building:   l.Building,
		Room:       l.Room,
		Hidden:     l.Hidden,
		State:      l.Customization,
		Comment:    l.Comment,
	}
	if l.Subgroup != nil {
		h.Subgroup = *l.Subgroup
	}
	if len(l.Alternates) > 0 {
		alts := make([]hashedLesson, 0, len(l.Alternates))
		for _, a := range l.Alternates {
			alts = append(alts, toHashed(a))
		}
		// Alternates are display-unordered; canonicalize before hashing.
		sort.Slice(alts, func(i, j int) bool { return alts[i].LessonID < alts[j].LessonID })
		h.Alternates = alts
	}
	return h
}

// hashedWeek is the canonical hash payload. Group, year and week are part
// of it: the rendered document labels all three, so two weeks that differ
// only there must never share a raster.
type hashedWeek struct {
	GroupID string           `json:"g"`
	Year    int              `json:"y"`
	Week    int              `json:"n"`
	Days    [][]hashedLesson `json:"d"`
}

func contentHash(tt *models.Timetable) (string, error) {
	canonical := hashedWeek{
		GroupID: tt.GroupID,
		Year:    tt.Year,
		Week:    tt.WeekNumber,
		Days:    make([][]hashedLesson, models.ClassDays),
	}
	for i := range tt.Days {
		day := tt.Days[i]
		lessons := make([]hashedLesson, 0, len(day.Lessons))
		for _, l := range day.Lessons {
			lessons = append(lessons, toHashed(l))
		}
		canonical.Days[i] = lessons
	}

	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(payload)), nil
}
