// Package guard gates routes on session, subscription and role.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ordem/internal/auth"
	"ordem/internal/cache"
	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/storage"
)

const statusTTL = time.Minute

// SubscriptionSource loads a user's subscription.
type SubscriptionSource interface {
	GetSubscription(ctx context.Context, userID string) (core.Subscription, error)
}

// Authenticator resolves the session of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (auth.Session, error)
}

type Guard struct {
	auth   Authenticator
	subs   SubscriptionSource
	status *cache.LRU[core.Subscription]
	now    func() time.Time
}

func New(a Authenticator, subs SubscriptionSource) *Guard {
	return &Guard{
		auth:   a,
		subs:   subs,
		status: cache.NewLRU[core.Subscription](1024, statusTTL),
		now:    time.Now,
	}
}

// Cache exposes the status cache so a janitor can clean it.
func (g *Guard) Cache() *cache.LRU[core.Subscription] { return g.status }

// Invalidate drops the cached subscription of userID. Call it after any
// subscription change.
func (g *Guard) Invalidate(userID string) {
	g.status.Delete(userID)
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/realtime/")
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends the client to target: HX-Redirect for htmx, JSON status
// for the API, a 302 otherwise.
func redirect(w http.ResponseWriter, r *http.Request, target string, apiStatus int) {
	switch {
	case isAPI(r):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiStatus)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(apiStatus)})
	case isHTMX(r):
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
	default:
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// RequireSession rejects requests without a valid session.
func (g *Guard) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.auth.Authenticate(r)
		if err != nil {
			target := "/login"
			if r.Method == http.MethodGet && !isHTMX(r) {
				target += "?next=" + url.QueryEscape(r.URL.RequestURI())
			}
			redirect(w, r, target, http.StatusUnauthorized)
			return
		}
		ctx := auth.WithSession(r.Context(), s)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, s.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Subscription returns the (cached) subscription of userID.
func (g *Guard) Subscription(ctx context.Context, userID string) (core.Subscription, error) {
	if sub, ok := g.status.Get(userID); ok {
		return sub, nil
	}
	sub, err := g.subs.GetSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		sub, err = core.Subscription{UserID: userID, Status: core.StatusExpired}, nil
	}
	if err != nil {
		return core.Subscription{}, err
	}
	g.status.Set(userID, sub)
	return sub, nil
}

// RequireSubscription sends users without an active or trialing plan to
// the paywall. Admins always pass. It must run after RequireSession.
func (g *Guard) RequireSubscription(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := auth.SessionFrom(r.Context())
		if !ok {
			redirect(w, r, "/login", http.StatusUnauthorized)
			return
		}
		if s.IsAdmin() {
			next.ServeHTTP(w, r)
			return
		}
		sub, err := g.Subscription(r.Context(), s.UserID)
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Subscription lookup failed", log.FieldError, err)
			http.Error(w, "Erro ao verificar assinatura", http.StatusInternalServerError)
			return
		}
		if !sub.Allows(g.now()) {
			redirect(w, r, "/paywall", http.StatusPaymentRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin answers 403 to non-admins. It must run after RequireSession.
func (g *Guard) RequireAdmin(forbidden http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := auth.SessionFrom(r.Context())
			if !ok || !s.IsAdmin() {
				if forbidden != nil {
					forbidden.ServeHTTP(w, r)
					return
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
