package sheets

import (
	"encoding/json"
	"testing"

	"ordem/internal/core"
)

func TestRowFromRecordAfterJSON(t *testing.T) {
	src := map[string]any{
		"id": "t1", "user_id": "u1", "date": "2025-03-04",
		"description": "Aluguel", "category": "fixed", "amount_cents": int64(150000),
	}
	b, err := json.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}

	row, err := RowFromRecord(decoded)
	if err != nil {
		t.Fatalf("RowFromRecord: %v", err)
	}
	want := LedgerRow{ID: "t1", UserID: "u1", Date: "2025-03-04", Description: "Aluguel",
		Category: core.CategoryFixed, AmountCents: 150000}
	if row != want {
		t.Fatalf("row = %+v, want %+v", row, want)
	}

	cells := row.Cells()
	if cells[0] != "t1" || cells[4] != 1500.0 || cells[5] != "u1" {
		t.Fatalf("cells = %v", cells)
	}
}

func TestRowFromRecordRejects(t *testing.T) {
	if _, err := RowFromRecord(map[string]any{}); err == nil {
		t.Fatal("missing id should fail")
	}
	if _, err := RowFromRecord(map[string]any{"id": "x", "amount_cents": true}); err == nil {
		t.Fatal("bool amount should fail")
	}
}
