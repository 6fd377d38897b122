package resource

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseForm(t *testing.T) {
	def, ok := Lookup("trip_expenses")
	if !ok {
		t.Fatal("trip_expenses not registered")
	}

	tests := []struct {
		name    string
		form    url.Values
		want    Values
		wantErr []string
	}{
		{
			name: "valid",
			form: url.Values{
				"date": {"2026-07-02"}, "description": {"  Jantar  "}, "amount_cents": {"R$ 1.234,56"},
				"trip_id": {"ignored"},
			},
			want: Values{"date": "2026-07-02", "description": "Jantar", "category": "", "amount_cents": int64(123456)},
		},
		{
			name:    "missing required",
			form:    url.Values{"description": {"Taxi"}},
			wantErr: []string{"amount_cents", "date"},
		},
		{
			name:    "bad amount and date",
			form:    url.Values{"date": {"2026-02-30"}, "description": {"x"}, "amount_cents": {"-5"}},
			wantErr: []string{"amount_cents", "date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseForm(def, tt.form)
			if len(tt.wantErr) > 0 {
				var fe FieldErrors
				if !errors.As(err, &fe) {
					t.Fatalf("want FieldErrors, got %v", err)
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("FieldErrors should match ErrValidation")
				}
				for _, name := range tt.wantErr {
					if _, ok := fe[name]; !ok {
						t.Errorf("missing error for %s in %v", name, fe)
					}
				}
				if len(fe) != len(tt.wantErr) {
					t.Errorf("got %d errors, want %d: %v", len(fe), len(tt.wantErr), fe)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseForm mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFieldKinds(t *testing.T) {
	tests := []struct {
		field   Field
		raw     string
		want    any
		wantErr bool
	}{
		{Field{Name: "f", Kind: Bool}, "on", true, false},
		{Field{Name: "f", Kind: Bool}, "", false, false},
		{Field{Name: "f", Kind: Number}, "12", int64(12), false},
		{Field{Name: "f", Kind: Number, Max: 7}, "8", nil, true},
		{Field{Name: "f", Kind: Number}, "1.5", nil, true},
		{Field{Name: "f", Kind: Number}, "", nil, false},
		{Field{Name: "f", Kind: Decimal}, "72,5", 72.5, false},
		{Field{Name: "f", Kind: Time}, "9:05", "09:05", false},
		{Field{Name: "f", Kind: Time}, "25:00", nil, true},
		{Field{Name: "f", Kind: DateTime}, "2026-08-01T19:30", "2026-08-01T19:30", false},
		{Field{Name: "f", Kind: Select, Options: []Option{{"a", "A"}}}, "b", nil, true},
		{Field{Name: "f", Kind: URL}, "javascript:alert(1)", nil, true},
		{Field{Name: "f", Kind: URL}, "https://example.com/x", "https://example.com/x", false},
		{Field{Name: "f", Kind: Text, Max: 3}, "abcd", nil, true},
		{Field{Name: "f", Kind: Text}, "a\x00b", "ab", false},
		{Field{Name: "f", Kind: Text, Required: true}, "   ", nil, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.field.Kind)+"/"+tt.raw, func(t *testing.T) {
			got, err := parseField(tt.field, url.Values{"f": {tt.raw}})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRegistryIsConsistent(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range All() {
		if seen[def.Name] {
			t.Errorf("duplicate resource %s", def.Name)
		}
		seen[def.Name] = true

		if def.Parent != nil {
			if _, ok := Lookup(def.Parent.Resource); !ok {
				t.Errorf("%s: unknown parent %s", def.Name, def.Parent.Resource)
			}
			f, ok := def.Field(def.Parent.Field)
			if !ok || f.Kind != Ref {
				t.Errorf("%s: parent field %s must be a ref", def.Name, def.Parent.Field)
			}
		}
		for _, f := range def.Fields {
			if f.Kind == Select && len(f.Options) == 0 {
				t.Errorf("%s.%s: select without options", def.Name, f.Name)
			}
		}
	}

	for _, d := range Domains() {
		for _, name := range d.Resources {
			if _, ok := Lookup(name); !ok {
				t.Errorf("domain %s lists unknown resource %s", d.Slug, name)
			}
		}
	}
}

func TestDisplay(t *testing.T) {
	money := Field{Kind: Money}
	if got := money.Display(int64(123456)); got != "R$ 1.234,56" {
		t.Errorf("money display = %q", got)
	}
	if got := money.Input(int64(123456)); got != "1234,56" {
		t.Errorf("money input = %q", got)
	}
	date := Field{Kind: Date}
	if got := date.Display("2026-03-09"); got != "09/03/2026" {
		t.Errorf("date display = %q", got)
	}
	sel := Field{Kind: Select, Options: []Option{{"done", "Concluído"}}}
	if got := sel.Display("done"); got != "Concluído" {
		t.Errorf("select display = %q", got)
	}
}
