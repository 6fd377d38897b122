// Package habits builds the weekly habit tracker on top of the habits table
// and its completion rows.
package habits

import (
	"context"
	"fmt"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/metrics"
	"ordem/internal/realtime"
	"ordem/internal/storage"
)

const (
	weekDays = 7
	// streakWindow bounds how far back a streak is counted.
	streakWindow = 366
)

// HabitWeek is one row of the week view.
type HabitWeek struct {
	Habit core.Habit
	// Done holds one flag per day of Week.Days, oldest first.
	Done   []bool
	Count  int
	Streak int
}

// Reached reports whether the weekly target is met. Habits without a target
// are never "reached".
func (h HabitWeek) Reached() bool {
	return h.Habit.TargetPerWeek > 0 && h.Count >= h.Habit.TargetPerWeek
}

type Week struct {
	Days   []core.Date
	Habits []HabitWeek
}

// BuildWeek lays out the 7 days ending at today. completions may reach back
// further than the week; older days only feed the streak.
func BuildWeek(habits []core.Habit, completions []core.HabitCompletion, today core.Date) Week {
	w := Week{Days: make([]core.Date, weekDays)}
	for i := range w.Days {
		w.Days[i] = today.AddDays(i - weekDays + 1)
	}

	done := make(map[string]map[string]bool, len(habits))
	for _, c := range completions {
		if done[c.HabitID] == nil {
			done[c.HabitID] = map[string]bool{}
		}
		done[c.HabitID][c.Date.String()] = true
	}

	for _, h := range habits {
		hw := HabitWeek{Habit: h, Done: make([]bool, weekDays)}
		days := done[h.ID]
		for i, d := range w.Days {
			if days[d.String()] {
				hw.Done[i] = true
				hw.Count++
			}
		}
		hw.Streak = Streak(days, today)
		w.Habits = append(w.Habits, hw)
	}
	return w
}

// Streak counts consecutive completed days ending today, or ending yesterday
// when today is still open.
func Streak(done map[string]bool, today core.Date) int {
	d := today
	if !done[d.String()] {
		d = d.AddDays(-1)
	}
	n := 0
	for done[d.String()] && n < streakWindow {
		n++
		d = d.AddDays(-1)
	}
	return n
}

type Service struct {
	store     *storage.Store
	publisher realtime.Publisher
	metrics   *metrics.Metrics
}

func NewService(store *storage.Store, publisher realtime.Publisher, m *metrics.Metrics) *Service {
	return &Service{store: store, publisher: publisher, metrics: m}
}

// Week loads the active habits of userID with completions for the week
// ending today.
func (s *Service) Week(ctx context.Context, userID string, today core.Date) (Week, error) {
	habits, err := s.store.ListActiveHabits(ctx, userID)
	if err != nil {
		return Week{}, err
	}
	completions, err := s.store.HabitCompletions(ctx, userID, today.AddDays(-streakWindow), today)
	if err != nil {
		return Week{}, err
	}
	return BuildWeek(habits, completions, today), nil
}

// Toggle flips the completion of habitID on date and reports the new state.
func (s *Service) Toggle(ctx context.Context, userID, habitID string, date core.Date) (bool, error) {
	if err := date.Validate(); err != nil {
		return false, err
	}
	done, err := s.store.ToggleHabitCompletion(ctx, userID, habitID, date)
	if err != nil {
		return false, fmt.Errorf("toggle habit completion: %w", err)
	}

	s.metrics.RecordMutation("habit_completions", log.OpToggle)
	log.LogMutation(ctx, log.OpToggle, "habit_completions", habitID, userID)

	record := map[string]any{"habit_id": habitID, "user_id": userID, "date": date.String()}
	change := realtime.Change{Type: realtime.Insert, Table: "habit_completions", Record: record}
	if !done {
		change = realtime.Change{Type: realtime.Delete, Table: "habit_completions", OldRecord: record}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, change); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Failed to publish change",
				log.FieldTable, change.Table, log.FieldError, err)
		}
	}
	return done, nil
}
