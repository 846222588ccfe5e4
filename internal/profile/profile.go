package profile

import (
	"errors"
	"strings"
)

// GoalCategory is the training focus derived from a goal description.
type GoalCategory string

const (
	Fitness       GoalCategory = "fitness"
	Bodybuilding  GoalCategory = "bodybuilding"
	Powerlifting  GoalCategory = "powerlifting"
	Streetlifting GoalCategory = "streetlifting"
)

// Categories lists every valid GoalCategory.
var Categories = []GoalCategory{Fitness, Bodybuilding, Powerlifting, Streetlifting}

var (
	ErrNotFound = errors.New("not found")
	// ErrGoalNotClassified is returned together with a saved profile whose goal
	// could not be categorized.
	ErrGoalNotClassified = errors.New("goal description saved but could not be classified")
)

// User is an account.
type User struct {
	ID         int64  `db:"id" json:"id"`
	Username   string `db:"username" json:"username"`
	TelegramID *int64 `db:"telegram_id" json:"telegram_id,omitempty"`
	IsAdmin    bool   `db:"is_admin" json:"is_admin"`
}

// Profile holds the user's goal. GoalCategory and GoalExplanation are only ever
// written by goal classification.
type Profile struct {
	UserID          int64        `db:"user_id" json:"user_id"`
	GoalDescription string       `db:"goal_description" json:"goal_description"`
	GoalCategory    GoalCategory `db:"goal_category" json:"goal_category"`
	GoalExplanation string       `db:"goal_explanation" json:"goal_explanation"`
}

// ParseGoalCategory normalizes a model answer such as ` "Bodybuilding." ` and
// reports whether it names a known category.
func ParseGoalCategory(s string) (GoalCategory, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`*")
	s = strings.TrimSuffix(s, ".")
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
