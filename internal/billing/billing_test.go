package billing

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ordem/internal/core"
	"ordem/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func setup(t *testing.T) (*Service, *storage.Store, *recordingInvalidator, string) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	acc, err := store.CreateAccount(context.Background(),
		core.User{Email: "bia@example.com", PasswordHash: "x"},
		core.Profile{DisplayName: "Bia"},
		core.Subscription{Status: core.StatusTrialing, CurrentPeriodEnd: time.Now().Add(24 * time.Hour)})
	require.NoError(t, err)

	inv := &recordingInvalidator{}
	return NewService(store, inv), store, inv, acc.ID
}

func TestDefaultCatalog(t *testing.T) {
	plans, err := DefaultCatalog()
	require.NoError(t, err)
	require.NotEmpty(t, plans)
	for _, p := range plans {
		assert.NotEmpty(t, p.Code)
		assert.Contains(t, []core.PlanInterval{core.IntervalMonth, core.IntervalYear}, p.Interval)
	}
}

func TestParseCatalogRejects(t *testing.T) {
	tests := map[string]string{
		"missing code":  "plans:\n  - name: x\n    interval: month\n",
		"bad interval":  "plans:\n  - code: a\n    interval: week\n",
		"duplicate":     "plans:\n  - code: a\n    interval: month\n  - code: a\n    interval: year\n",
		"negative":      "plans:\n  - code: a\n    interval: month\n    price_cents: -1\n",
		"invalid yaml:": "plans: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSyncPlansIsIdempotent(t *testing.T) {
	svc, store, _, _ := setup(t)
	ctx := context.Background()
	plans, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = svc.SyncPlans(ctx, plans)
	require.NoError(t, err)
	_, err = svc.SyncPlans(ctx, plans)
	require.NoError(t, err)

	all, err := store.ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, len(plans))
}

func TestChoosePlan(t *testing.T) {
	svc, store, inv, userID := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	planID, err := store.UpsertPlan(ctx, core.Plan{Code: "m", Name: "Mensal", Interval: core.IntervalMonth, Credits: 30, Active: true})
	require.NoError(t, err)

	sub, err := svc.ChoosePlan(ctx, userID, planID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(0, 1, 0)))
	assert.Equal(t, []string{userID}, inv.ids)

	// A second purchase extends from the current end.
	sub, err = svc.ChoosePlan(ctx, userID, planID)
	require.NoError(t, err)
	assert.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(0, 2, 0)))

	st, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.EqualValues(t, 60, st.Credits)
	require.NotNil(t, st.Plan)
	assert.Equal(t, "Mensal", st.Plan.Name)
	assert.Len(t, st.Ledger, 2)
}

func TestChooseInactivePlan(t *testing.T) {
	svc, store, _, userID := setup(t)
	ctx := context.Background()
	planID, err := store.UpsertPlan(ctx, core.Plan{Code: "old", Name: "Old", Interval: core.IntervalMonth})
	require.NoError(t, err)

	_, err = svc.ChoosePlan(ctx, userID, planID)
	assert.ErrorIs(t, err, ErrPlanInactive)

	_, err = svc.ChoosePlan(ctx, userID, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGrantCreditsAndExpire(t *testing.T) {
	svc, store, inv, userID := setup(t)
	ctx := context.Background()

	_, err := svc.GrantCredits(ctx, userID, 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	e, err := svc.GrantCredits(ctx, userID, -5, " ")
	require.NoError(t, err)
	assert.Equal(t, "Ajuste manual", e.Reason)

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	ids, err := svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{userID}, ids)
	assert.Contains(t, inv.ids, userID)

	sub, err := store.GetSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusExpired, sub.Status)

	_, err = svc.SetSubscription(ctx, userID, "p", 0)
	assert.ErrorIs(t, err, ErrInvalidDays)
}
