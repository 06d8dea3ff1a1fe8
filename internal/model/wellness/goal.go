package wellness

import (
	"strings"
	"time"

	"github.com/zhouzirui/serene/backend/internal/model"
)

// DateLayout is the calendar-date format goals are stored with.
const DateLayout = "2006-01-02"

const DefaultGoalCategory = "Other"

// Goal is a user-defined wellness goal.
type Goal struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	TargetDate  string    `json:"target_date"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GoalPatch lists the fields of a partial goal update. Nil fields are left untouched.
type GoalPatch struct {
	Title       *string
	Description *string
	Category    *string
	TargetDate  *string
	Completed   *bool
}

// Empty reports whether the patch changes nothing.
func (p GoalPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.TargetDate == nil && p.Completed == nil
}

// Apply copies the supplied fields onto g.
func (p GoalPatch) Apply(g *Goal) {
	if p.Title != nil {
		g.Title = *p.Title
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.Category != nil {
		g.Category = *p.Category
	}
	if p.TargetDate != nil {
		g.TargetDate = *p.TargetDate
	}
	if p.Completed != nil {
		g.Completed = *p.Completed
	}
}

// NormalizeDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the calendar date.
func NormalizeDate(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", model.Invalid("target_date is required")
	}
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t.Format(DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format(DateLayout), nil
	}
	return "", model.Invalid("target_date must be a date in YYYY-MM-DD format")
}
