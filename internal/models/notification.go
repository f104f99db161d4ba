package models

import "time"

// NotificationKind labels why a pending notification exists.
type NotificationKind string

const (
	NotifyDayStart       NotificationKind = "day_start"
	NotifyDayStartSecond NotificationKind = "day_start_second"
	NotifyWindow         NotificationKind = "window"
	NotifyUpNext         NotificationKind = "up_next"
	NotifyBeforeLesson   NotificationKind = "before_lesson"
	NotifyNextDay        NotificationKind = "next_day"
	NotifyNextWeek       NotificationKind = "next_week"
	NotifyScheduleChange NotificationKind = "schedule_change"
)

// PendingNotification is a scheduled message awaiting dispatch. Delivery and
// transport retries belong to the dispatcher, not to the core.
type PendingNotification struct {
	ID         string           `db:"id" json:"id"`
	UserID     int64            `db:"user_id" json:"user_id"`
	ChatTarget int64            `db:"chat_target" json:"chat_target"`
	Kind       NotificationKind `db:"kind" json:"kind"`
	SendAt     time.Time        `db:"send_at" json:"send_at"`
	Text       string           `db:"text" json:"text"`
	ImageBytes []byte           `db:"image_bytes" json:"-"`
	SentAt     *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// NotificationPreferences are the per-user toggles consumed by the daily
// scheduler. Each block is independently switchable.
type NotificationPreferences struct {
	UserID          int64     `db:"user_id" json:"user_id"`
	DayStartEnabled bool      `db:"day_start_enabled" json:"day_start_enabled"`
	LeadSeconds     int       `db:"lead_seconds" json:"lead_seconds"`
	BetweenEnabled  bool      `db:"between_enabled" json:"between_enabled"`
	NextDayEnabled  bool      `db:"next_day_enabled" json:"next_day_enabled"`
	NextWeekEnabled bool      `db:"next_week_enabled" json:"next_week_enabled"`
	ChangesEnabled  bool      `db:"changes_enabled" json:"changes_enabled"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// DiffResult is the outcome of comparing two synchronizations of a week.
type DiffResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Empty reports whether the diff carries no changes.
func (d DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}
