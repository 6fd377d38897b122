// Package memory is an in-process ledger used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"sync"

	"ordem/internal/sheets"
)

// Ledger keeps rows in sheet order. Cleared rows stay as blank slots, the
// same way a cleared spreadsheet row keeps its position.
type Ledger struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
}

var _ sheets.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(_ context.Context, row sheets.LedgerRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, row)
	return nil
}

func (l *Ledger) Update(_ context.Context, row sheets.LedgerRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.find(row.ID)
	if i < 0 {
		return sheets.ErrRowNotFound
	}
	l.rows[i] = row
	return nil
}

func (l *Ledger) Clear(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.find(id)
	if i < 0 {
		return sheets.ErrRowNotFound
	}
	l.rows[i] = sheets.LedgerRow{}
	return nil
}

func (l *Ledger) find(id string) int {
	for i, r := range l.rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Rows returns a copy of the current rows including blank slots.
func (l *Ledger) Rows() []sheets.LedgerRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sheets.LedgerRow(nil), l.rows...)
}

// Get returns the row with id.
func (l *Ledger) Get(id string) (sheets.LedgerRow, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.find(id); i >= 0 {
		return l.rows[i], true
	}
	return sheets.LedgerRow{}, false
}
