package http

import (
	"net/http"

	"ordem/internal/core"
	"ordem/internal/habits"
	"ordem/internal/resource"
)

type habitsView struct {
	Week  habits.Week
	Today core.Date
	Table tableView
}

func (s *Server) handleHabits(w http.ResponseWriter, r *http.Request) {
	today := core.Today()
	week, err := s.Habits.Week(r.Context(), session(r).UserID, today)
	if err != nil {
		s.fail(w, r, err, "habit_week")
		return
	}
	def, _ := resource.Lookup("habits")
	tv, err := s.tableFor(r, def, "")
	if err != nil {
		s.fail(w, r, err, "habits")
		return
	}
	s.render(w, r, http.StatusOK, "page_habits", s.page(r, "Hábitos", "habits", habitsView{Week: week, Today: today, Table: tv}))
}

func (s *Server) handleHabitWeek(w http.ResponseWriter, r *http.Request) {
	s.writeHabitWeek(w, r, nil)
}

func (s *Server) handleHabitToggle(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	date, err := core.ParseDate(r.PostForm.Get("date"))
	if err != nil {
		s.fail(w, r, err, "habit_toggle")
		return
	}
	done, err := s.Habits.Toggle(r.Context(), session(r).UserID, r.PathValue("id"), date)
	if err != nil {
		s.fail(w, r, err, "habit_toggle")
		return
	}
	s.writeHabitWeek(w, r, func(b *HTMXResponseBuilder) {
		b.TriggerRecordsChanged("habit_completions")
		if done {
			b.TriggerSuccessNotification("Hábito concluído")
		}
	})
}

func (s *Server) writeHabitWeek(w http.ResponseWriter, r *http.Request, decorate func(*HTMXResponseBuilder)) {
	today := core.Today()
	week, err := s.Habits.Week(r.Context(), session(r).UserID, today)
	if err != nil {
		s.fail(w, r, err, "habit_week")
		return
	}
	resp, err := s.partial(r, "habit_week", habitsView{Week: week, Today: today})
	if err != nil {
		InternalServerError("Erro ao montar a semana").Write(w)
		return
	}
	if decorate != nil {
		decorate(resp)
	}
	resp.Write(w)
}
