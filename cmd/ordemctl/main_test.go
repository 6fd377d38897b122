package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordem/internal/config"
	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/storage"
)

func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{
		cfg:    &config.Config{SQLiteDBPath: dbPath, TrialDays: 7},
		logger: log.New(log.Config{Level: slog.LevelError, Format: "text", Output: io.Discard}),
		out:    &out,
	}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestOperatorWorkflow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ordem.db")

	out, err := execute(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "dirty=false")

	out, err = execute(t, db, "user", "create", "--email", "Ana@Example.com", "--password", "segredo123", "--name", "Ana", "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.com role=admin")

	out, err = execute(t, db, "plans", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 3 plans")

	out, err = execute(t, db, "subscription", "set", "--email", "ana@example.com", "--plan", "mensal", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.com on mensal")

	_, err = execute(t, db, "credits", "grant", "--email", "ana@example.com", "--amount", "50", "--reason", "boas-vindas")
	require.NoError(t, err)
	out, err = execute(t, db, "credits", "grant", "--email", "ana@example.com", "--amount=-20", "--reason", "ajuste")
	require.NoError(t, err)
	assert.Contains(t, out, "balance 30")

	out, err = execute(t, db, "recompute", "--email", "ana@example.com", "--year", "2024", "--month", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "recomputed 1 months")

	st, err := storage.Open(db)
	require.NoError(t, err)
	defer st.Close()

	acc, err := st.GetAccountByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, acc.Profile.Role)

	agg, err := st.GetAggregate(context.Background(), acc.ID, core.MonthKey{Year: 2024, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.Balance().Cents)
}

func TestUnknownAccountFails(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ordem.db")

	_, err := execute(t, db, "credits", "grant", "--email", "ninguem@example.com", "--amount", "5", "--reason", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecomputeRejectsInvalidMonth(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ordem.db")

	_, err := execute(t, db, "user", "create", "--email", "bia@example.com", "--password", "segredo123")
	require.NoError(t, err)

	_, err = execute(t, db, "recompute", "--email", "bia@example.com", "--year", "2024", "--month", "13")
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}

func TestDistinctMonthsSorted(t *testing.T) {
	day := func(s string) core.Date {
		d, err := core.ParseDate(s)
		require.NoError(t, err)
		return d
	}
	txs := []core.Transaction{
		{Date: day("2024-05-02")},
		{Date: day("2023-12-31")},
		{Date: day("2024-05-20")},
		{Date: day("2024-01-10")},
	}
	assert.Equal(t, []core.MonthKey{{Year: 2023, Month: 12}, {Year: 2024, Month: 1}, {Year: 2024, Month: 5}}, distinctMonths(txs))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailPollsWithoutRealtime(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations/c1/messages" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("after") != "0" {
			_, _ = io.WriteString(w, `{"messages":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"messages":[
			{"id":"m2","conversation_id":"c1","sender_id":"u2","seq":2,"body":"tudo bem?","created_at":"2024-03-01T10:01:00Z"},
			{"id":"m1","conversation_id":"c1","sender_id":"u1","seq":1,"body":"oi","created_at":"2024-03-01T10:00:00Z"}]}`)
	}))
	defer srv.Close()

	out := &syncBuffer{}
	a := &app{
		cfg:    &config.Config{},
		logger: log.New(log.Config{Level: slog.LevelError, Format: "text", Output: io.Discard}),
		out:    out,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.tail(ctx, srv.URL, "tok", "c1", 20*time.Millisecond) }()

	require.Eventually(t, func() bool { return polls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got := out.String()
	assert.Contains(t, got, "#1 ")
	assert.Contains(t, got, "u1: oi")
	assert.Contains(t, got, "#2 ")
	assert.Less(t, strings.Index(got, "#1 "), strings.Index(got, "#2 "))
}

func TestRecomputeResetsMonthsWithoutTransactions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ordem.db")
	_, err := execute(t, db, "user", "create", "--email", "caio@example.com", "--password", "segredo123")
	require.NoError(t, err)

	ctx := context.Background()
	st, err := storage.Open(db)
	require.NoError(t, err)
	acc, err := st.GetAccountByEmail(ctx, "caio@example.com")
	require.NoError(t, err)
	drifted := core.MonthKey{Year: 2023, Month: 11}
	require.NoError(t, st.UpsertAggregate(ctx, core.MonthlyAggregate{
		UserID: acc.ID, Month: drifted, Income: core.Money{Cents: 99900},
	}))
	require.NoError(t, st.Close())

	out, err := execute(t, db, "recompute", "--email", "caio@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "recomputed 1 months")

	st, err = storage.Open(db)
	require.NoError(t, err)
	defer st.Close()
	agg, err := st.GetAggregate(ctx, acc.ID, drifted)
	require.NoError(t, err)
	assert.Zero(t, agg.Income.Cents)
}

func TestDistinctMonthsIncludesStored(t *testing.T) {
	d, err := core.ParseDate("2024-05-02")
	require.NoError(t, err)
	got := distinctMonths([]core.Transaction{{Date: d}}, core.MonthKey{Year: 2024, Month: 5}, core.MonthKey{Year: 2022, Month: 1})
	assert.Equal(t, []core.MonthKey{{Year: 2022, Month: 1}, {Year: 2024, Month: 5}}, got)
}
