package http

import (
	"net/http"
	"strings"

	"ordem/internal/auth"
	"ordem/internal/core"
	"ordem/internal/log"
)

type authForm struct {
	Email string
	Name  string
	Next  string
	Error string
}

// safeNext only allows local absolute paths as redirect targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.JWT.Authenticate(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "page_login", s.page(r, "Entrar", "login", authForm{Next: r.URL.Query().Get("next")}))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formato de requisição inválido", http.StatusBadRequest)
		return
	}
	form := authForm{Email: strings.TrimSpace(r.PostForm.Get("email")), Next: r.PostForm.Get("next")}

	acc, err := s.Auth.Authenticate(r.Context(), form.Email, r.PostForm.Get("password"))
	if err != nil {
		status, msg := userError(err)
		if status >= http.StatusInternalServerError {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Login failed", log.FieldError, err)
		}
		form.Error = msg
		s.render(w, r, status, "page_login", s.page(r, "Entrar", "login", form))
		return
	}
	if !s.startSession(w, r, acc) {
		return
	}
	http.Redirect(w, r, safeNext(form.Next), http.StatusSeeOther)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "page_signup", s.page(r, "Criar conta", "signup", authForm{}))
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formato de requisição inválido", http.StatusBadRequest)
		return
	}
	form := authForm{
		Email: strings.TrimSpace(r.PostForm.Get("email")),
		Name:  strings.TrimSpace(r.PostForm.Get("display_name")),
	}
	password := r.PostForm.Get("password")
	if password != r.PostForm.Get("password_confirm") {
		form.Error = "As senhas não conferem"
		s.render(w, r, http.StatusUnprocessableEntity, "page_signup", s.page(r, "Criar conta", "signup", form))
		return
	}

	acc, err := s.Auth.Register(r.Context(), form.Email, form.Name, password)
	if err != nil {
		status, msg := userError(err)
		if status >= http.StatusInternalServerError {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Signup failed", log.FieldError, err)
		}
		form.Error = msg
		s.render(w, r, status, "page_signup", s.page(r, "Criar conta", "signup", form))
		return
	}
	if !s.startSession(w, r, acc) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, acc core.Account) bool {
	token, err := s.JWT.Generate(acc)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Session token generation failed", log.FieldError, err)
		http.Error(w, "Erro ao iniciar sessão", http.StatusInternalServerError)
		return false
	}
	auth.SetCookie(w, token, s.JWT.TTL(), s.cookieSecure())
	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Session started",
		log.FieldUserID, acc.ID)
	return true
}

func (s *Server) cookieSecure() bool {
	return s.Config != nil && s.Config.CookieSecure
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, s.cookieSecure())
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
