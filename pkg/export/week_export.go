package export

import (
	"fmt"
	"strings"

	"github.com/studtime/studtime/internal/models"
)

var weekdayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

var weekHeaders = []string{"Day", "Slot", "Time", "Discipline", "Kind", "Teacher", "Location"}

// Dataset is the tabular shape shared by the week exporters. Headers fixes
// the column order; rows address cells by header name.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Records flattens the rows into header-ordered string records.
func (d Dataset) Records() [][]string {
	records := make([][]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make([]string, len(d.Headers))
		for i, header := range d.Headers {
			record[i] = row[header]
		}
		records = append(records, record)
	}
	return records
}

// WeekDataset flattens a synthesized week into the tabular export shape.
// Hidden lessons are skipped, collapsed alternates are folded into one row.
func WeekDataset(tt *models.Timetable) Dataset {
	data := Dataset{Headers: weekHeaders}
	for d := 1; d <= models.ClassDays; d++ {
		day := tt.Day(d)
		if day == nil || day.Empty() {
			continue
		}
		for _, lesson := range day.Lessons {
			if lesson.Hidden {
				continue
			}
			data.Rows = append(data.Rows, weekRow(d, lesson))
		}
	}
	return data
}

func weekRow(weekday int, lesson models.TimetableLesson) map[string]string {
	discipline := lesson.Discipline
	if n := len(lesson.Alternates); n > 0 {
		discipline = fmt.Sprintf("%s (+%d)", discipline, n)
	}
	return map[string]string{
		"Day":        weekdayNames[weekday],
		"Slot":       fmt.Sprintf("%d", lesson.TimeSlot),
		"Time":       fmt.Sprintf("%s-%s", lesson.BeginTime.Format("15:04"), lesson.EndTime.Format("15:04")),
		"Discipline": discipline,
		"Kind":       string(lesson.Kind),
		"Teacher":    lesson.TeacherName,
		"Location":   location(lesson),
	}
}

func location(lesson models.TimetableLesson) string {
	if lesson.Online {
		return "online"
	}
	parts := make([]string, 0, 2)
	if lesson.Building != "" {
		parts = append(parts, lesson.Building)
	}
	if lesson.Room != "" {
		parts = append(parts, lesson.Room)
	}
	return strings.Join(parts, " ")
}

// WeekTitle builds the document heading for a week export.
func WeekTitle(groupID string, year, week int) string {
	return fmt.Sprintf("%s week %d/%d", groupID, week, year)
}
