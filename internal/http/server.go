package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ordem/internal/auth"
	"ordem/internal/billing"
	"ordem/internal/config"
	"ordem/internal/files"
	"ordem/internal/finance"
	"ordem/internal/guard"
	"ordem/internal/habits"
	"ordem/internal/log"
	"ordem/internal/messaging"
	"ordem/internal/metrics"
	"ordem/internal/middleware/ratelimit"
	"ordem/internal/middleware/security"
	"ordem/internal/middleware/trace"
	"ordem/internal/realtime"
	"ordem/internal/resource"
	"ordem/internal/services"
	appweb "ordem/web"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer is assembled from.
type Deps struct {
	Config    *config.Config
	Store     Pinger
	Auth      *auth.Service
	JWT       *auth.JWTManager
	Guard     *guard.Guard
	Records   *services.RecordService
	Habits    *habits.Service
	Finance   *finance.Service
	Community *services.CommunityService
	Profiles  *services.ProfileService
	Admin     *services.AdminService
	Billing   *billing.Service
	Messaging *messaging.Service
	Files     *files.Service
	Hub       *realtime.Hub
	Metrics   *metrics.Metrics
	Limiter   *ratelimit.Limiter
	Detector  *security.Detector
	Logger    *log.Logger
}

type Server struct {
	http.Server
	Deps

	views        *views
	logger       *log.Logger
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, d Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = log.New(log.DefaultConfig())
	}
	if d.Detector == nil {
		d.Detector = security.NewDetector()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	v, err := parseViews()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s := &Server{
		Deps:   d,
		views:  v,
		logger: d.Logger.WithComponent(log.ComponentHTTP),
	}
	if err := s.routes(mux); err != nil {
		return nil, err
	}

	var h http.Handler = mux
	h = d.Limiter.Middleware(d.Detector.ClientIP, s.handleRateLimited)(h)
	if d.Metrics != nil {
		h = d.Metrics.InstrumentHandler(h, mux)
	}
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = d.Detector.Middleware(h)
	h = trace.NewMiddleware(d.Logger, d.Detector.ClientIP, "/healthz", "/readyz", "/metrics", "/static/").Handler(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	sub, err := appweb.Static()
	if err != nil {
		return err
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssets(3600)(static))

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	// Public
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /realtime/v1/websocket", &realtime.Handler{
		Hub:          s.Hub,
		Authorizer:   realtime.TopicAuthorizer{Participants: s.Messaging},
		Authenticate: s.websocketUser,
		Connections:  s.realtimeGauge(),
		Logger:       s.Logger,
	})

	// Signed in, subscription not required
	session := s.Guard.RequireSession
	mux.Handle("GET /paywall", session(http.HandlerFunc(s.handlePaywall)))
	mux.Handle("POST /billing/plans/{id}/choose", session(http.HandlerFunc(s.handleChoosePlan)))
	mux.Handle("GET /profile", session(http.HandlerFunc(s.handleProfile)))
	mux.Handle("POST /profile", session(http.HandlerFunc(s.handleUpdateProfile)))
	mux.Handle("POST /profile/avatar", session(http.HandlerFunc(s.handleAvatar)))
	mux.Handle("POST /profile/password", session(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("GET /files/{bucket}/{key...}", session(http.HandlerFunc(s.handleFile)))

	// Members
	member := func(h http.HandlerFunc) http.Handler {
		return s.Guard.RequireSession(s.Guard.RequireSubscription(h))
	}
	mux.Handle("GET /{$}", member(s.handleDashboard))

	for _, d := range resource.Domains() {
		mux.Handle("GET /"+d.Slug, member(s.domainPage(d)))
	}
	mux.Handle("GET /r/{resource}", member(s.handleRecordTable))
	mux.Handle("GET /r/{resource}/new", member(s.handleRecordNew))
	mux.Handle("GET /r/{resource}/{id}", member(s.handleRecordDetail))
	mux.Handle("GET /r/{resource}/{id}/edit", member(s.handleRecordEdit))
	mux.Handle("POST /r/{resource}", member(s.handleRecordCreate))
	mux.Handle("POST /r/{resource}/{id}", member(s.handleRecordUpdate))
	mux.Handle("POST /r/{resource}/{id}/delete", member(s.handleRecordDelete))
	mux.Handle("POST /r/{resource}/{id}/toggle/{field}", member(s.handleRecordToggle))

	mux.Handle("GET /habits", member(s.handleHabits))
	mux.Handle("GET /habits/week", member(s.handleHabitWeek))
	mux.Handle("POST /habits/{id}/toggle", member(s.handleHabitToggle))

	mux.Handle("GET /finance", member(s.handleFinance))
	mux.Handle("GET /finance/month", member(s.handleFinanceMonth))
	mux.Handle("GET /finance/statement.pdf", member(s.handleStatement))
	mux.Handle("GET /finance/transactions/new", member(s.handleTransactionNew))
	mux.Handle("GET /finance/transactions/{id}/edit", member(s.handleTransactionEdit))
	mux.Handle("POST /finance/transactions", member(s.handleTransactionCreate))
	mux.Handle("POST /finance/transactions/{id}", member(s.handleTransactionUpdate))
	mux.Handle("POST /finance/transactions/{id}/delete", member(s.handleTransactionDelete))

	mux.Handle("GET /community", member(s.handleCommunity))
	mux.Handle("GET /community/feed", member(s.handleFeed))
	mux.Handle("POST /community/posts", member(s.handleCreatePost))
	mux.Handle("GET /community/posts/{id}/edit", member(s.handleEditPost))
	mux.Handle("POST /community/posts/{id}", member(s.handleUpdatePost))
	mux.Handle("POST /community/posts/{id}/delete", member(s.handleDeletePost))
	mux.Handle("POST /community/posts/{id}/like", member(s.handleLikePost))
	mux.Handle("GET /community/people", member(s.handlePeople))
	mux.Handle("POST /community/people/{id}/follow", member(s.handleFollow))
	mux.Handle("GET /community/events", member(s.handleEvents))
	mux.Handle("POST /community/events/{id}/join", member(s.handleJoinEvent))

	mux.Handle("GET /messages", member(s.handleInbox))
	mux.Handle("GET /messages/sidebar", member(s.handleSidebar))
	mux.Handle("GET /messages/{id}", member(s.handleConversation))
	mux.Handle("POST /messages/direct", member(s.handleStartDirect))
	mux.Handle("POST /messages/group", member(s.handleCreateGroup))
	mux.Handle("GET /api/unread", member(s.handleUnread))
	mux.Handle("GET /api/conversations/{id}/messages", member(s.handleListMessages))
	mux.Handle("POST /api/conversations/{id}/messages", member(s.handleSendMessage))
	mux.Handle("POST /api/conversations/{id}/read", member(s.handleMarkRead))

	// Admin
	admin := func(h http.HandlerFunc) http.Handler {
		return s.Guard.RequireSession(s.Guard.RequireAdmin(http.HandlerFunc(s.handleForbidden))(h))
	}
	mux.Handle("GET /admin", admin(s.handleAdmin))
	mux.Handle("GET /admin/users", admin(s.handleAdminUsers))
	mux.Handle("POST /admin/users/{id}/role", admin(s.handleAdminRole))
	mux.Handle("POST /admin/users/{id}/subscription", admin(s.handleAdminSubscription))
	mux.Handle("POST /admin/users/{id}/credits", admin(s.handleAdminCredits))

	mux.HandleFunc("/", s.handleNotFound)
	return nil
}

func (s *Server) websocketUser(r *http.Request) (string, error) {
	sess, err := s.JWT.Authenticate(r)
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}

func (s *Server) realtimeGauge() prometheus.Gauge {
	if s.Metrics == nil {
		return nil
	}
	return s.Metrics.RealtimeConns
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorToast(http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.").Write(w)
}

// Shutdown gracefully shuts down the server and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		if s.Hub != nil {
			s.Hub.Close()
		}
	})
	return shutdownErr
}
