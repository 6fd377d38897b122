package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/resource"
)

const (
	agendaDays       = 7
	dashboardTimeout = 5 * time.Second
	sectionError     = "Não foi possível carregar esta seção."
)

type (
	dashboardView struct {
		Today   core.Date
		Habits  habitSection
		Agenda  agendaSection
		Finance financeSection
		Unread  unreadSection
		Chores  choreSection
	}

	habitSection struct {
		Done, Total int
		Err         string
	}

	agendaSection struct {
		Items []agendaItem
		Err   string
	}

	agendaItem struct {
		Date  core.Date
		Time  string
		Kind  string
		Title string
		Link  string
	}

	financeSection struct {
		Month     core.MonthKey
		Aggregate core.MonthlyAggregate
		Err       string
	}

	unreadSection struct {
		Count int64
		Err   string
	}

	choreSection struct {
		Pending []string
		Err     string
	}
)

// handleDashboard loads every section concurrently. A failing section is
// rendered with an inline error instead of failing the page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), dashboardTimeout)
	defer cancel()

	user := session(r).UserID
	today := core.Today()
	view := dashboardView{Today: today}
	logger := log.FromContext(ctx)

	sectionFailed := func(name string, err error) string {
		logger.WarnContext(ctx, "Dashboard section failed", "section", name, log.FieldError, err)
		return sectionError
	}

	var g errgroup.Group
	g.Go(func() error {
		week, err := s.Habits.Week(ctx, user, today)
		if err != nil {
			view.Habits.Err = sectionFailed("habits", err)
			return nil
		}
		for _, h := range week.Habits {
			view.Habits.Total++
			if len(h.Done) > 0 && h.Done[len(h.Done)-1] {
				view.Habits.Done++
			}
		}
		return nil
	})
	g.Go(func() error {
		items, err := s.agenda(ctx, user, today)
		if err != nil {
			view.Agenda.Err = sectionFailed("agenda", err)
			return nil
		}
		view.Agenda.Items = items
		return nil
	})
	g.Go(func() error {
		month := today.MonthKey()
		view.Finance.Month = month
		mv, err := s.Finance.Month(ctx, user, month)
		if err != nil {
			view.Finance.Err = sectionFailed("finance", err)
			return nil
		}
		view.Finance.Aggregate = mv.Aggregate
		return nil
	})
	g.Go(func() error {
		n, err := s.Messaging.UnreadTotal(ctx, user)
		if err != nil {
			view.Unread.Err = sectionFailed("unread", err)
			return nil
		}
		view.Unread.Count = n
		return nil
	})
	g.Go(func() error {
		pending, err := s.pendingChores(ctx, user)
		if err != nil {
			view.Chores.Err = sectionFailed("chores", err)
			return nil
		}
		view.Chores.Pending = pending
		return nil
	})
	_ = g.Wait()

	s.render(w, r, http.StatusOK, "page_dashboard", s.page(r, "Hoje", "dashboard", view))
}

// agenda lists appointments and exams dated within the next week.
func (s *Server) agenda(ctx context.Context, user string, today core.Date) ([]agendaItem, error) {
	from, to := today.String(), today.AddDays(agendaDays).String()
	sources := []struct {
		resource, kind, title string
	}{
		{"appointments", "Consulta", "specialty"},
		{"exams", "Prova", "subject"},
	}

	var items []agendaItem
	for _, src := range sources {
		def, ok := resource.Lookup(src.resource)
		if !ok {
			continue
		}
		rows, err := s.Records.List(ctx, def, user, "")
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			date, _ := row.Values["date"].(string)
			if date < from || date > to {
				continue
			}
			if done, _ := row.Values["done"].(bool); done {
				continue
			}
			d, err := core.ParseDate(date)
			if err != nil {
				continue
			}
			at, _ := row.Values["time"].(string)
			title, _ := row.Values[src.title].(string)
			items = append(items, agendaItem{Date: d, Time: at, Kind: src.kind, Title: title, Link: "/" + def.Domain})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date.Time) {
			return items[i].Date.Before(items[j].Date.Time)
		}
		return items[i].Time < items[j].Time
	})
	return items, nil
}

func (s *Server) pendingChores(ctx context.Context, user string) ([]string, error) {
	def, ok := resource.Lookup("chores")
	if !ok {
		return nil, nil
	}
	rows, err := s.Records.List(ctx, def, user, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		if done, _ := row.Values["done"].(bool); done {
			continue
		}
		if title, _ := row.Values["title"].(string); title != "" {
			out = append(out, title)
		}
	}
	return out, nil
}
