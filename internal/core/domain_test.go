package core

import (
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.String() != "2024-02-29" {
		t.Fatalf("round trip mismatch: %s", d)
	}
	for _, bad := range []string{"", "2024-02-30", "29/02/2024", "2024-13-01"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("%q expected error", bad)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestMonthKey(t *testing.T) {
	dec := MonthKey{Year: 2024, Month: 12}
	if got := dec.Next(); got != (MonthKey{Year: 2025, Month: 1}) {
		t.Fatalf("next of december = %v", got)
	}
	if got := (MonthKey{Year: 2025, Month: 1}).Prev(); got != dec {
		t.Fatalf("prev of january = %v", got)
	}
	feb := MonthKey{Year: 2024, Month: 2}
	if got := feb.Last().Day(); got != 29 {
		t.Fatalf("last day of leap february = %d", got)
	}
	if !feb.Contains(NewDate(2024, 2, 10)) || feb.Contains(NewDate(2023, 2, 10)) {
		t.Fatalf("contains must compare year and month")
	}
	if err := (MonthKey{Year: 2024, Month: 0}).Validate(); err == nil {
		t.Fatalf("month 0 must be invalid")
	}
	if feb.String() != "2024-02" {
		t.Fatalf("string = %s", feb.String())
	}
}
