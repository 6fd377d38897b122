// Package sheets mirrors finance transactions into a spreadsheet ledger, one
// row per transaction keyed by its id in the first column.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ordem/internal/core"
)

var ErrRowNotFound = errors.New("ledger row not found")

// Header is the first row of the ledger sheet.
var Header = []string{"ID", "Data", "Descrição", "Categoria", "Valor", "Usuário"}

// LedgerRow is one mirrored transaction.
type LedgerRow struct {
	ID          string
	UserID      string
	Date        string
	Description string
	Category    core.Category
	AmountCents int64
}

// Cells renders the row in column order.
func (r LedgerRow) Cells() []any {
	return []any{
		r.ID,
		r.Date,
		r.Description,
		r.Category.Label(),
		core.Money{Cents: r.AmountCents}.Reais(),
		r.UserID,
	}
}

// Ledger is the outbound port the mirror worker writes through.
type Ledger interface {
	// Append adds a row at the end of the sheet.
	Append(ctx context.Context, row LedgerRow) error
	// Update rewrites the row whose first column is row.ID.
	Update(ctx context.Context, row LedgerRow) error
	// Clear blanks the row whose first column is id.
	Clear(ctx context.Context, id string) error
}

// RowFromRecord decodes a transactions change record. Numbers may arrive as
// float64 after a JSON round trip.
func RowFromRecord(rec map[string]any) (LedgerRow, error) {
	id, _ := rec["id"].(string)
	if id == "" {
		return LedgerRow{}, errors.New("record without id")
	}
	row := LedgerRow{ID: id}
	row.UserID, _ = rec["user_id"].(string)
	row.Date, _ = rec["date"].(string)
	row.Description, _ = rec["description"].(string)
	if c, ok := rec["category"].(string); ok {
		row.Category = core.Category(c)
	}
	switch v := rec["amount_cents"].(type) {
	case int64:
		row.AmountCents = v
	case int:
		row.AmountCents = int64(v)
	case float64:
		row.AmountCents = int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return LedgerRow{}, fmt.Errorf("amount_cents: %w", err)
		}
		row.AmountCents = n
	case nil:
	default:
		return LedgerRow{}, fmt.Errorf("amount_cents has type %T", v)
	}
	return row, nil
}
