package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordem/internal/auth"
	"ordem/internal/core"
	"ordem/internal/storage"
)

type stubAuth struct{ sessions map[string]auth.Session }

func (a stubAuth) Authenticate(r *http.Request) (auth.Session, error) {
	s, ok := a.sessions[auth.TokenFromRequest(r)]
	if !ok {
		return auth.Session{}, auth.ErrInvalidToken
	}
	return s, nil
}

type stubSubs struct {
	subs  map[string]core.Subscription
	calls int
}

func (s *stubSubs) GetSubscription(_ context.Context, userID string) (core.Subscription, error) {
	s.calls++
	sub, ok := s.subs[userID]
	if !ok {
		return core.Subscription{}, storage.ErrNotFound
	}
	return sub, nil
}

func newGuard() (*Guard, *stubSubs) {
	future := time.Now().Add(time.Hour)
	subs := &stubSubs{subs: map[string]core.Subscription{
		"paid":    {UserID: "paid", Status: core.StatusActive, CurrentPeriodEnd: future},
		"expired": {UserID: "expired", Status: core.StatusExpired, CurrentPeriodEnd: future},
		"lapsed":  {UserID: "lapsed", Status: core.StatusTrialing, CurrentPeriodEnd: time.Now().Add(-time.Hour)},
	}}
	a := stubAuth{sessions: map[string]auth.Session{
		"t-paid":    {UserID: "paid"},
		"t-expired": {UserID: "expired"},
		"t-lapsed":  {UserID: "lapsed"},
		"t-admin":   {UserID: "admin", Role: "admin"},
	}}
	return New(a, subs), subs
}

func request(method, path, token string, htmx bool) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if htmx {
		r.Header.Set("HX-Request", "true")
	}
	return r
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestRequireSession(t *testing.T) {
	g, _ := newGuard()
	h := g.RequireSession(ok)

	tests := []struct {
		name     string
		req      *http.Request
		status   int
		location string
		hx       string
	}{
		{"page redirects with next", request(http.MethodGet, "/finance?year=2025", "", false), http.StatusFound, "/login?next=%2Ffinance%3Fyear%3D2025", ""},
		{"api gets 401", request(http.MethodGet, "/api/conversations", "", false), http.StatusUnauthorized, "", ""},
		{"htmx gets HX-Redirect", request(http.MethodPost, "/r/trips", "", true), http.StatusOK, "", "/login"},
		{"valid session passes", request(http.MethodGet, "/", "t-paid", false), http.StatusNoContent, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
			assert.Equal(t, tt.hx, rec.Header().Get("HX-Redirect"))
		})
	}
}

func TestRequireSubscription(t *testing.T) {
	g, _ := newGuard()
	h := g.RequireSession(g.RequireSubscription(ok))

	for token, want := range map[string]int{
		"t-paid":    http.StatusNoContent,
		"t-admin":   http.StatusNoContent,
		"t-expired": http.StatusFound,
		"t-lapsed":  http.StatusFound,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request(http.MethodGet, "/habits", token, false))
		assert.Equal(t, want, rec.Code, token)
		if want == http.StatusFound {
			assert.Equal(t, "/paywall", rec.Header().Get("Location"))
		}
	}
}

func TestSubscriptionIsCachedUntilInvalidated(t *testing.T) {
	g, subs := newGuard()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Subscription(ctx, "paid")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, subs.calls)

	g.Invalidate("paid")
	_, err := g.Subscription(ctx, "paid")
	require.NoError(t, err)
	assert.Equal(t, 2, subs.calls)

	missing, err := g.Subscription(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, core.StatusExpired, missing.Status)
}

func TestRequireAdmin(t *testing.T) {
	g, _ := newGuard()
	h := g.RequireSession(g.RequireAdmin(nil)(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(http.MethodGet, "/admin", "t-paid", false))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request(http.MethodGet, "/admin", "t-admin", false))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
