package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordem/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ordem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, email, name string) core.Account {
	t.Helper()
	acc, err := s.CreateAccount(context.Background(),
		core.User{Email: email, PasswordHash: "hash"},
		core.Profile{DisplayName: name},
		core.Subscription{Status: core.StatusTrialing, CurrentPeriodEnd: time.Now().Add(24 * time.Hour)})
	require.NoError(t, err)
	return acc
}

var notesTable = Table{
	Name: "care_items",
	Columns: []Column{
		{Name: "title", Kind: ColText},
		{Name: "category", Kind: ColText},
		{Name: "date", Kind: ColText},
		{Name: "done", Kind: ColBool},
		{Name: "notes", Kind: ColText},
	},
	Owned:   true,
	OrderBy: "date, created_at",
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordem.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 4, version)
}

func TestRowRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")

	created, err := s.InsertRow(ctx, notesTable, ana.ID, map[string]any{
		"title": "Vacina", "category": "saude", "date": "2026-03-01", "done": false,
	})
	require.NoError(t, err)
	assert.Equal(t, ana.ID, created.OwnerID)

	got, err := s.GetRow(ctx, notesTable, ana.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Vacina", got.Values["title"])
	assert.Equal(t, "2026-03-01", got.Values["date"])
	assert.Equal(t, false, got.Values["done"])
	assert.Equal(t, "", got.Values["notes"])

	_, after, err := s.UpdateRow(ctx, notesTable, ana.ID, created.ID, map[string]any{"notes": "reforco"})
	require.NoError(t, err)
	assert.Equal(t, "reforco", after.Values["notes"])
	assert.Equal(t, "Vacina", after.Values["title"])
}

func TestToggleTwiceRestores(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")

	row, err := s.InsertRow(ctx, notesTable, ana.ID, map[string]any{"title": "Dentista", "done": false})
	require.NoError(t, err)

	_, once, err := s.ToggleRow(ctx, notesTable, ana.ID, row.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, true, once.Values["done"])

	_, twice, err := s.ToggleRow(ctx, notesTable, ana.ID, row.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, false, twice.Values["done"])

	_, _, err = s.ToggleRow(ctx, notesTable, ana.ID, row.ID, "title")
	assert.Error(t, err)
}

func TestDeleteRemovesFromList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")

	a, err := s.InsertRow(ctx, notesTable, ana.ID, map[string]any{"title": "A", "date": "2026-01-01"})
	require.NoError(t, err)
	_, err = s.InsertRow(ctx, notesTable, ana.ID, map[string]any{"title": "B", "date": "2026-01-02"})
	require.NoError(t, err)

	deleted, err := s.DeleteRow(ctx, notesTable, ana.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", deleted.Values["title"])

	rows, err := s.ListRows(ctx, notesTable, ana.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].Values["title"])

	_, err = s.GetRow(ctx, notesTable, ana.ID, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRowsAreOwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")
	bia := createUser(t, s, "bia@example.com", "Bia")

	row, err := s.InsertRow(ctx, notesTable, ana.ID, map[string]any{"title": "privado"})
	require.NoError(t, err)

	_, err = s.GetRow(ctx, notesTable, bia.ID, row.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.UpdateRow(ctx, notesTable, bia.ID, row.ID, map[string]any{"title": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeleteRow(ctx, notesTable, bia.ID, row.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := s.ListRows(ctx, notesTable, bia.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFilterRejectsUnknownColumn(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListRows(context.Background(), notesTable, "u", Eq("password_hash", "x"))
	assert.Error(t, err)
	_, err = s.ListRows(context.Background(), notesTable, "u", Filter{Column: "title", Op: "LIKE", Value: "%"})
	assert.Error(t, err)
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "ana@example.com", "Ana")

	_, err := s.CreateAccount(context.Background(),
		core.User{Email: "ana@example.com", PasswordHash: "h"},
		core.Profile{DisplayName: "Outra"},
		core.Subscription{Status: core.StatusTrialing, CurrentPeriodEnd: time.Now()})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestHabitCompletionToggle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")
	bia := createUser(t, s, "bia@example.com", "Bia")

	habits := Table{Name: "habits", Columns: []Column{{Name: "name", Kind: ColText}, {Name: "archived", Kind: ColBool}}, Owned: true}
	h, err := s.InsertRow(ctx, habits, ana.ID, map[string]any{"name": "Ler"})
	require.NoError(t, err)

	day := core.NewDate(2026, 5, 10)
	done, err := s.ToggleHabitCompletion(ctx, ana.ID, h.ID, day)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = s.ToggleHabitCompletion(ctx, ana.ID, h.ID, day)
	require.NoError(t, err)
	assert.False(t, done)

	completions, err := s.HabitCompletions(ctx, ana.ID, day.AddDays(-7), day)
	require.NoError(t, err)
	assert.Empty(t, completions)

	_, err = s.ToggleHabitCompletion(ctx, bia.ID, h.ID, day)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpireSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")
	bia := createUser(t, s, "bia@example.com", "Bia")

	require.NoError(t, s.UpsertSubscription(ctx, core.Subscription{
		UserID: bia.ID, Status: core.StatusActive, CurrentPeriodEnd: time.Now().Add(-time.Hour),
	}))

	expired, err := s.ExpireSubscriptions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{bia.ID}, expired)

	sub, err := s.GetSubscription(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusTrialing, sub.Status)
}

func TestCreditBalance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ana := createUser(t, s, "ana@example.com", "Ana")

	_, err := s.AddCredit(ctx, ana.ID, 100, "plano")
	require.NoError(t, err)
	_, err = s.AddCredit(ctx, ana.ID, -30, "uso")
	require.NoError(t, err)

	balance, err := s.CreditBalance(ctx, ana.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 70, balance)
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, translate(errors.New("UNIQUE constraint failed: users.email")), ErrConflict)

	other := errors.New("disk I/O error")
	assert.Equal(t, other, translate(other))
}

func TestListTransactionsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM transactions").WillReturnError(errors.New("database is locked"))

	_, err = New(db).ListTransactions(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM files").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = New(db).Tx(context.Background(), func(tx *Store) error {
		if err := tx.DeleteFile(context.Background(), "avatars", "k"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
