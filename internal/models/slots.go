package models

import "time"

// MaxTimeSlot is the last slot of a class day. Slots are a closed
// enumeration 1..8; weekdays run 1 (Monday) through 6 (Saturday).
const (
	MaxTimeSlot = 8
	ClassDays   = 6
)

type slotTime struct {
	beginHour, beginMin int
	endHour, endMin     int
}

// slotTimes is the fixed pairing table used by the whole system. Index 0 is
// unused so slot numbers map directly.
var slotTimes = [MaxTimeSlot + 1]slotTime{
	1: {8, 0, 9, 30},
	2: {9, 40, 11, 10},
	3: {11, 20, 12, 50},
	4: {13, 20, 14, 50},
	5: {15, 0, 16, 30},
	6: {16, 40, 18, 10},
	7: {18, 30, 20, 0},
	8: {20, 10, 21, 40},
}

// ValidTimeSlot reports whether slot is in the closed 1..8 enumeration.
func ValidTimeSlot(slot int) bool {
	return slot >= 1 && slot <= MaxTimeSlot
}

// ValidWeekday reports whether weekday is a class day (1..6).
func ValidWeekday(weekday int) bool {
	return weekday >= 1 && weekday <= ClassDays
}

// WeekStart returns the Monday of the given ISO week at midnight UTC.
func WeekStart(year, week int) time.Time {
	// January 4 is always inside ISO week 1.
	anchor := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	isoYear, isoWeek := anchor.ISOWeek()
	_ = isoYear

	offset := int(anchor.Weekday())
	if offset == 0 {
		offset = 7
	}
	monday := anchor.AddDate(0, 0, 1-offset)
	return monday.AddDate(0, 0, (week-isoWeek)*7)
}

// SlotSpan derives the begin/end timestamps of a slot on a concrete day.
// The result is the zero span when slot or weekday is out of range.
func SlotSpan(year, week, weekday, slot int) (time.Time, time.Time) {
	if !ValidTimeSlot(slot) || !ValidWeekday(weekday) {
		return time.Time{}, time.Time{}
	}

	day := WeekStart(year, week).AddDate(0, 0, weekday-1)
	st := slotTimes[slot]
	begin := day.Add(time.Duration(st.beginHour)*time.Hour + time.Duration(st.beginMin)*time.Minute)
	end := day.Add(time.Duration(st.endHour)*time.Hour + time.Duration(st.endMin)*time.Minute)
	return begin, end
}

// DayBounds returns the theoretical earliest begin and latest end of a class
// day, used to seed min/max folding during synthesis.
func DayBounds(year, week, weekday int) (time.Time, time.Time) {
	first, _ := SlotSpan(year, week, weekday, 1)
	_, last := SlotSpan(year, week, weekday, MaxTimeSlot)
	return first, last
}
