package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	"ordem/internal/realtime"
	"ordem/internal/services"
	"ordem/internal/storage"
)

const testSecret = "test-secret-test-secret-test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "ordem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	local, err := files.NewLocal(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)

	logger := log.New(log.Config{Level: slog.LevelError, Format: "text", Output: io.Discard})
	m := metrics.New()
	hub := realtime.NewHub(16, logger)
	fs := files.NewService(local, store, 1<<20)
	jwt := auth.NewJWTManager(testSecret, time.Hour)
	g := guard.New(jwt, store)
	router := messaging.NewRouter(store, hub, m, logger, time.Minute)
	t.Cleanup(router.Stop)

	srv, err := NewServer(":0", Deps{
		Config:    &config.Config{},
		Store:     store,
		Auth:      auth.NewService(store, 14, nil),
		JWT:       jwt,
		Guard:     g,
		Records:   services.NewRecordService(store, hub, m),
		Habits:    habits.NewService(store, hub, m),
		Finance:   finance.NewService(store, hub, m),
		Community: services.NewCommunityService(store, fs, hub, m),
		Profiles:  services.NewProfileService(store, fs),
		Admin:     services.NewAdminService(store),
		Billing:   billing.NewService(store, g),
		Messaging: messaging.NewService(store, router, hub),
		Files:     fs,
		Hub:       hub,
		Metrics:   m,
		Limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000, IdleTTL: time.Minute}),
		Logger:    logger,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// noRedirect returns a client that reports redirects instead of following them.
func noRedirect(jar http.CookieJar) *http.Client {
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func signup(t *testing.T, ts *httptest.Server, email, name string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := noRedirect(jar)

	resp, err := client.PostForm(ts.URL+"/signup", url.Values{
		"email":            {email},
		"display_name":     {name},
		"password":         {"senha-segura"},
		"password_confirm": {"senha-segura"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	return client
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestViewsDefineEveryPage(t *testing.T) {
	v, err := parseViews()
	require.NoError(t, err)

	for _, name := range []string{
		"page_login", "page_signup", "page_error", "page_dashboard", "page_domain", "page_record",
		"record_table", "record_modal", "record_form", "page_habits", "habit_week",
		"page_finance", "finance_month", "transaction_modal", "transaction_form",
		"page_community", "community_feed", "community_events", "community_people", "page_people", "post_modal",
		"page_inbox", "page_conversation", "message_sidebar",
		"page_profile", "profile_avatar", "page_paywall", "page_admin", "admin_users",
	} {
		assert.NotNil(t, v.t.Lookup(name), "template %s", name)
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	assert.Contains(t, body(t, resp), "# TYPE")
}

func TestSecurityHeadersAndStatic(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/login")
	require.NoError(t, err)
	page := body(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, page, `action="/login"`)

	resp, err = http.Get(ts.URL + "/static/app.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGuardRedirectsAnonymous(t *testing.T) {
	ts := newTestServer(t)
	client := noRedirect(nil)

	resp, err := client.Get(ts.URL + "/finance?year=2024&month=5")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next="+url.QueryEscape("/finance?year=2024&month=5"), resp.Header.Get("Location"))

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/habits", nil)
	req.Header.Set("HX-Request", "true")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/login", resp.Header.Get("HX-Redirect"))

	resp, err = client.Get(ts.URL + "/api/unread")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestSignupRejectsMismatchedPasswords(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.PostForm(ts.URL+"/signup", url.Values{
		"email":            {"ana@example.com"},
		"display_name":     {"Ana"},
		"password":         {"senha-segura"},
		"password_confirm": {"outra-senha"},
	})
	require.NoError(t, err)
	page := body(t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, page, "As senhas não conferem")
	assert.Contains(t, page, `value="ana@example.com"`)
}

func TestLoginWithWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	signup(t, ts, "ana@example.com", "Ana")

	resp, err := noRedirect(nil).PostForm(ts.URL+"/login", url.Values{
		"email":    {"ana@example.com"},
		"password": {"errada-errada"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMemberPagesRender(t *testing.T) {
	ts := newTestServer(t)
	client := signup(t, ts, "ana@example.com", "Ana")

	for _, path := range []string{
		"/", "/habits", "/finance", "/finance?year=2024&month=2", "/community",
		"/community/people", "/messages", "/profile", "/paywall", "/study", "/health",
	} {
		resp, err := client.Get(ts.URL + path)
		require.NoError(t, err, path)
		page := body(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, page, "Ordem Essencial", path)
	}

	resp, err := client.Get(ts.URL + "/r/trips")
	require.NoError(t, err)
	assert.Contains(t, body(t, resp), `id="table-trips"`)

	resp, err = client.Get(ts.URL + "/admin")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.Get(ts.URL + "/r/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatementPDF(t *testing.T) {
	ts := newTestServer(t)
	client := signup(t, ts, "ana@example.com", "Ana")

	resp, err := client.Get(ts.URL + "/finance/statement.pdf?year=2024&month=3")
	require.NoError(t, err)
	pdf := body(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "extrato-2024-03.pdf")
	assert.True(t, strings.HasPrefix(pdf, "%PDF"))
}

func TestMessagingAPI(t *testing.T) {
	ts := newTestServer(t)
	ana := signup(t, ts, "ana@example.com", "Ana")
	bia := signup(t, ts, "bia@example.com", "Bia")

	// Find Bia's id through the people search.
	var biaID string
	resp, err := ana.Get(ts.URL + "/community/people?q=Bia")
	require.NoError(t, err)
	page := body(t, resp)
	if i := strings.Index(page, "/community/people/"); i >= 0 {
		rest := page[i+len("/community/people/"):]
		biaID = rest[:strings.Index(rest, "/")]
	}
	require.NotEmpty(t, biaID)

	resp, err = ana.PostForm(ts.URL+"/messages/direct", url.Values{"peer_id": {biaID}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/messages/"))
	conversation := strings.TrimPrefix(location, "/messages/")
	api := ts.URL + "/api/conversations/" + conversation

	send := func(c *http.Client, text, nonce string) (int, map[string]any) {
		payload, _ := json.Marshal(map[string]string{"body": text, "nonce": nonce})
		resp, err := c.Post(api+"/messages", "application/json", strings.NewReader(string(payload)))
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		resp.Body.Close()
		return resp.StatusCode, out
	}

	status, first := send(ana, "Oi, Bia!", "nonce-1")
	require.Equal(t, http.StatusCreated, status)
	msg := first["message"].(map[string]any)
	assert.EqualValues(t, 1, msg["seq"])

	status, again := send(ana, "Oi, Bia!", "nonce-1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, again["duplicate"])
	assert.Equal(t, msg["id"], again["message"].(map[string]any)["id"])

	status, reply := send(bia, "Oi, Ana", "nonce-2")
	require.Equal(t, http.StatusCreated, status)
	assert.EqualValues(t, 2, reply["message"].(map[string]any)["seq"])

	resp, err = ana.Get(ts.URL + "/api/unread")
	require.NoError(t, err)
	var unread struct{ Unread int64 }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unread))
	resp.Body.Close()
	assert.EqualValues(t, 1, unread.Unread)

	resp, err = ana.Get(api + "/messages?after=1")
	require.NoError(t, err)
	var list struct {
		Messages []struct {
			Seq  int64
			Body string
		}
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "Oi, Ana", list.Messages[0].Body)

	resp, err = ana.Post(api+"/read", "application/json", strings.NewReader(`{"seq":2}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	outsider := signup(t, ts, "caio@example.com", "Caio")
	status, _ = send(outsider, "posso entrar?", "nonce-3")
	assert.Equal(t, http.StatusForbidden, status)

	resp, err = ana.Get(ts.URL + location)
	require.NoError(t, err)
	page = body(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, page, `data-conversation-id="`+conversation+`"`)
	assert.Contains(t, page, "Oi, Ana")
}
