package models

import "time"

// User is a registered consumer of personalized timetables.
type User struct {
	ID           int64     `db:"id" json:"id"`
	ChatID       int64     `db:"chat_id" json:"chat_id"`
	GroupID      string    `db:"group_id" json:"group_id"`
	Subgroup     int       `db:"subgroup" json:"subgroup"`
	ShowIET      bool      `db:"show_iet" json:"show_iet"`
	ShowMilitary bool      `db:"show_military" json:"show_military"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Filters derives the synthesis filters implied by the user's settings.
func (u *User) Filters() SynthesisFilters {
	return SynthesisFilters{
		Subgroup:        u.Subgroup,
		IncludeIET:      u.ShowIET,
		IncludeMilitary: u.ShowMilitary,
	}
}

// Pagination describes list slicing metadata for API responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
