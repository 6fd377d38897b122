package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const CookieName = "ordem_session"

type sessionKey struct{}

// Session is the authenticated user of a request.
type Session struct {
	UserID string
	Email  string
	Role   string
}

func (s Session) IsAdmin() bool { return s.Role == "admin" }

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// TokenFromRequest reads the session cookie, then a bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// Authenticate resolves the session of r.
func (m *JWTManager) Authenticate(r *http.Request) (Session, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return Session{}, ErrInvalidToken
	}
	claims, err := m.Validate(token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
