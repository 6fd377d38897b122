package memory

import (
	"context"
	"errors"
	"testing"

	"ordem/internal/core"
	"ordem/internal/sheets"
)

func TestLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	l := New()

	row := sheets.LedgerRow{ID: "t1", Date: "2025-03-01", Description: "Mercado", Category: core.CategoryVariable, AmountCents: 1234}
	if err := l.Append(ctx, row); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(ctx, sheets.LedgerRow{ID: "t2"}); err != nil {
		t.Fatal(err)
	}

	row.AmountCents = 999
	if err := l.Update(ctx, row); err != nil {
		t.Fatal(err)
	}
	got, ok := l.Get("t1")
	if !ok || got.AmountCents != 999 {
		t.Fatalf("Get(t1) = %+v, %v", got, ok)
	}

	if err := l.Clear(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	rows := l.Rows()
	if len(rows) != 2 || rows[0].ID != "" || rows[1].ID != "t2" {
		t.Fatalf("rows after clear = %+v", rows)
	}

	if err := l.Update(ctx, sheets.LedgerRow{ID: "nope"}); !errors.Is(err, sheets.ErrRowNotFound) {
		t.Fatalf("Update missing: %v", err)
	}
	if err := l.Clear(ctx, "nope"); !errors.Is(err, sheets.ErrRowNotFound) {
		t.Fatalf("Clear missing: %v", err)
	}
}
