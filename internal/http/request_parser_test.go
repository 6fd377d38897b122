package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"ordem/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	current := core.CurrentMonth()
	tests := []struct {
		name  string
		query url.Values
		want  core.MonthKey
	}{
		{"both provided", url.Values{"year": {"2024"}, "month": {"6"}}, core.MonthKey{Year: 2024, Month: 6}},
		{"only month", url.Values{"month": {"3"}}, core.MonthKey{Year: current.Year, Month: 3}},
		{"empty uses current", url.Values{}, current},
		{"month out of range", url.Values{"year": {"2024"}, "month": {"13"}}, core.MonthKey{Year: 2024, Month: current.Month}},
		{"year out of range", url.Values{"year": {"10000"}, "month": {"2"}}, core.MonthKey{Year: current.Year, Month: 2}},
		{"garbage", url.Values{"year": {"abc"}, "month": {"x"}}, current},
		{"whitespace", url.Values{"year": {" 2023 "}, "month": {" 12 "}}, core.MonthKey{Year: 2023, Month: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMonthParams(tt.query); got != tt.want {
				t.Errorf("ParseMonthParams() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseDateParam(t *testing.T) {
	got := ParseDateParam(url.Values{"date": {"2024-02-29"}}, "date")
	if got.String() != "2024-02-29" {
		t.Errorf("ParseDateParam() = %s, want 2024-02-29", got)
	}

	today := core.Today()
	for _, raw := range []string{"", "29/02/2024", "2023-02-29"} {
		if got := ParseDateParam(url.Values{"date": {raw}}, "date"); got.String() != today.String() {
			t.Errorf("ParseDateParam(%q) = %s, want today %s", raw, got, today)
		}
	}
}

func TestParseInt64(t *testing.T) {
	q := url.Values{"after": {"41"}, "bad": {"x"}, "neg": {"-1"}}
	if got := ParseInt64(q, "after", -1); got != 41 {
		t.Errorf("after = %d, want 41", got)
	}
	if got := ParseInt64(q, "bad", 7); got != 7 {
		t.Errorf("bad = %d, want default 7", got)
	}
	if got := ParseInt64(q, "missing", 9); got != 9 {
		t.Errorf("missing = %d, want default 9", got)
	}
	if got := ParseInt64(q, "neg", 0); got != -1 {
		t.Errorf("neg = %d, want -1", got)
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"body":"  oi  ","nonce":"n-1","seq":12,"flag":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/conversations/c/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !p.IsJSON() {
		t.Error("IsJSON() = false, want true")
	}

	tests := map[string]string{"body": "oi", "nonce": "n-1", "seq": "12", "flag": "true", "missing": ""}
	for key, want := range tests {
		if got := p.Get(key); got != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestRequestBodyParser_Form(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("body=ol%C3%A1&seq=3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.IsJSON() {
		t.Error("IsJSON() = true, want false")
	}
	if got := p.Get("body"); got != "olá" {
		t.Errorf("Get(body) = %q", got)
	}
	if got := p.Get("seq"); got != "3" {
		t.Errorf("Get(seq) = %q", got)
	}
}

func TestRequestBodyParser_EmptyAndInvalid(t *testing.T) {
	empty := NewRequestBodyParser(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("")))
	if err := empty.Parse(); err != nil {
		t.Errorf("empty Parse() error = %v", err)
	}
	if got := empty.Get("body"); got != "" {
		t.Errorf("empty Get(body) = %q", got)
	}

	bad := NewRequestBodyParser(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{not json")))
	if err := bad.Parse(); err == nil {
		t.Error("invalid JSON Parse() error = nil, want error")
	}
	// Parse is idempotent.
	if err := bad.Parse(); err == nil {
		t.Error("second Parse() error = nil, want the same error")
	}
}

func TestParseFormOrFail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if resp := ParseFormOrFail(req); resp != nil {
		t.Fatal("ParseFormOrFail() returned an error response for a valid form")
	}
	if req.PostForm.Get("a") != "1" {
		t.Errorf("PostForm a = %q", req.PostForm.Get("a"))
	}

	bad := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("%zz"))
	bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := ParseFormOrFail(bad)
	if resp == nil {
		t.Fatal("ParseFormOrFail() = nil for a malformed form")
	}
	w := httptest.NewRecorder()
	resp.Write(w)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONError(w, http.StatusUnprocessableEntity, "seq inválido")

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Status code = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":"seq inválido"}` {
		t.Errorf("Body = %s", got)
	}
}
