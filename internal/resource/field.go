package resource

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"ordem/internal/core"
)

// Kind selects the input widget, the parser and the storage class of a field.
type Kind string

const (
	Text     Kind = "text"
	Textarea Kind = "textarea"
	Number   Kind = "number"
	Decimal  Kind = "decimal"
	Money    Kind = "money"
	Date     Kind = "date"
	Time     Kind = "time"
	DateTime Kind = "datetime"
	Bool     Kind = "bool"
	Select   Kind = "select"
	URL      Kind = "url"
	// Ref holds the id of the parent record. It is never shown as an input.
	Ref Kind = "ref"
)

const (
	defaultTextMax     = 200
	defaultTextareaMax = 2000
	dateTimeLayout     = "2006-01-02T15:04"
)

type Option struct {
	Value string
	Label string
}

type Field struct {
	Name        string
	Label       string
	Kind        Kind
	Required    bool
	Options     []Option
	Max         int
	Placeholder string
	// Hidden fields are editable in the modal but left out of the table.
	Hidden bool
}

func (f Field) maxLen() int {
	switch {
	case f.Max > 0:
		return f.Max
	case f.Kind == Textarea:
		return defaultTextareaMax
	default:
		return defaultTextMax
	}
}

// OptionLabel returns the label of value, or value itself when unknown.
func (f Field) OptionLabel(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// Values is a parsed record keyed by column name. Values hold string, int64,
// float64, bool or nil.
type Values map[string]any

// ErrValidation is matched by every form validation failure.
var ErrValidation = errors.New("validation failed")

// FieldErrors maps field names to a user-facing message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+fe[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) Is(target error) bool {
	return target == ErrValidation
}

// ParseForm converts the submitted form into typed values for def. Ref fields
// are not read from the form; the caller sets them.
func ParseForm(def *Definition, form url.Values) (Values, error) {
	values := Values{}
	errs := FieldErrors{}
	for _, f := range def.Fields {
		if f.Kind == Ref {
			continue
		}
		v, err := parseField(f, form)
		if err != nil {
			errs[f.Name] = err.Error()
			continue
		}
		values[f.Name] = v
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return values, nil
}

func parseField(f Field, form url.Values) (any, error) {
	if f.Kind == Bool {
		switch strings.ToLower(strings.TrimSpace(form.Get(f.Name))) {
		case "on", "true", "1", "yes":
			return true, nil
		default:
			return false, nil
		}
	}

	raw := sanitize(form.Get(f.Name))
	if raw == "" {
		if f.Required {
			return nil, fmt.Errorf("campo obrigatório")
		}
		switch f.Kind {
		case Number, Decimal, Money:
			return nil, nil
		}
		return "", nil
	}

	switch f.Kind {
	case Text, Textarea:
		if utf8.RuneCountInString(raw) > f.maxLen() {
			return nil, fmt.Errorf("máximo de %d caracteres", f.maxLen())
		}
		return raw, nil
	case Number:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("número inteiro inválido")
		}
		if f.Max > 0 && n > int64(f.Max) {
			return nil, fmt.Errorf("valor máximo %d", f.Max)
		}
		if n < 0 {
			return nil, fmt.Errorf("valor não pode ser negativo")
		}
		return n, nil
	case Decimal:
		x, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("número inválido")
		}
		if x < 0 {
			return nil, fmt.Errorf("valor não pode ser negativo")
		}
		return x, nil
	case Money:
		cents, err := core.ParseDecimalToCents(raw)
		if err != nil {
			return nil, fmt.Errorf("valor inválido")
		}
		return cents, nil
	case Date:
		d, err := core.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("data inválida")
		}
		return d.String(), nil
	case Time:
		t, err := time.Parse("15:04", raw)
		if err != nil {
			return nil, fmt.Errorf("horário inválido")
		}
		return t.Format("15:04"), nil
	case DateTime:
		t, err := time.Parse(dateTimeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("data e hora inválidas")
		}
		return t.Format(dateTimeLayout), nil
	case Select:
		for _, o := range f.Options {
			if o.Value == raw {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("opção inválida")
	case URL:
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("endereço inválido")
		}
		return u.String(), nil
	}
	return nil, fmt.Errorf("tipo de campo desconhecido %q", f.Kind)
}

// sanitize trims the input and drops control characters other than newlines
// and tabs.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
