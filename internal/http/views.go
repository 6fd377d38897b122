package http

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"ordem/internal/auth"
	"ordem/internal/core"
	"ordem/internal/finance"
	"ordem/internal/log"
	"ordem/internal/resource"
	appweb "ordem/web"
)

type views struct {
	t *template.Template
}

func parseViews() (*views, error) {
	t, err := template.New("ordem").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &views{t: t}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": func(v any) string {
			switch m := v.(type) {
			case core.Money:
				return m.String()
			case int64:
				return core.FormatCents(m)
			case int:
				return core.FormatCents(int64(m))
			}
			return ""
		},
		"moneyInput": func(m core.Money) string {
			if m.Cents == 0 {
				return ""
			}
			return core.FormatInput(m.Cents)
		},
		"date": func(d core.Date) string {
			if d.IsZero() {
				return ""
			}
			return d.Format("02/01/2006")
		},
		"weekday": func(d core.Date) string {
			return weekdayShort[d.Weekday()]
		},
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("02/01/2006 15:04")
		},
		"clock": func(t time.Time) string {
			return t.Local().Format("15:04")
		},
		"monthName":  finance.MonthName,
		"categories": func() []core.Category { return core.Categories },
		"initial": func(name string) string {
			for _, r := range strings.TrimSpace(name) {
				return strings.ToUpper(string(r))
			}
			return "?"
		},
		"dict": func(pairs ...any) (map[string]any, error) {
			if len(pairs)%2 != 0 {
				return nil, errors.New("dict needs key/value pairs")
			}
			m := make(map[string]any, len(pairs)/2)
			for i := 0; i < len(pairs); i += 2 {
				k, ok := pairs[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
				}
				m[k] = pairs[i+1]
			}
			return m, nil
		},
		"eq2": func(a, b any) bool {
			return fmt.Sprint(a) == fmt.Sprint(b)
		},
	}
}

var weekdayShort = [...]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

// page is the data every full page template receives.
type page struct {
	Title   string
	Nav     string
	Session auth.Session
	Domains []resource.Domain
	Unread  int64
	Data    any
}

func (s *Server) page(r *http.Request, title, nav string, data any) page {
	sess, _ := auth.SessionFrom(r.Context())
	p := page{Title: title, Nav: nav, Session: sess, Domains: resource.Domains(), Data: data}
	if sess.UserID != "" && s.Messaging != nil {
		if n, err := s.Messaging.UnreadTotal(r.Context(), sess.UserID); err == nil {
			p.Unread = n
		}
	}
	return p
}

// renderBytes executes a named template into memory so a failure never
// leaves a half-written response.
func (s *Server) renderBytes(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.views.t.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.renderBytes(name, data)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldComponent, log.ComponentTemplate, "template", name, log.FieldError, err)
		http.Error(w, "Erro ao montar a página", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// partial builds an HTMX response around a rendered fragment.
func (s *Server) partial(r *http.Request, name string, data any) (*HTMXResponseBuilder, error) {
	body, err := s.renderBytes(name, data)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Partial execution failed",
			log.FieldComponent, log.ComponentTemplate, "template", name, log.FieldError, err)
		return nil, err
	}
	return NewHTMXResponse().BodyHTML(body), nil
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func session(r *http.Request) auth.Session {
	s, _ := auth.SessionFrom(r.Context())
	return s
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		ErrorToast(http.StatusNotFound, "Página não encontrada").Write(w)
		return
	}
	s.render(w, r, http.StatusNotFound, "page_error", s.page(r, "Não encontrado", "", errorPage{
		Status: http.StatusNotFound, Message: "A página que você procura não existe.",
	}))
}

func (s *Server) handleForbidden(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		ErrorToast(http.StatusForbidden, "Acesso restrito a administradores").Write(w)
		return
	}
	s.render(w, r, http.StatusForbidden, "page_error", s.page(r, "Acesso negado", "", errorPage{
		Status: http.StatusForbidden, Message: "Você não tem permissão para acessar esta página.",
	}))
}

type errorPage struct {
	Status  int
	Message string
}
