package core

import "time"

type Habit struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	Color         string
	TargetPerWeek int
	Archived      bool
	CreatedAt     time.Time
}

// HabitCompletion marks a habit as done on one day.
type HabitCompletion struct {
	HabitID string
	Date    Date
}
