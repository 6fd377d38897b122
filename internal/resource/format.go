package resource

import (
	"strconv"
	"strings"
	"time"

	"ordem/internal/core"
)

// Display renders a stored value for the table view.
func (f Field) Display(v any) string {
	if v == nil {
		return ""
	}
	switch f.Kind {
	case Money:
		if cents, ok := v.(int64); ok {
			return core.Money{Cents: cents}.String()
		}
	case Bool:
		if b, ok := v.(bool); ok && b {
			return "Sim"
		}
		return "Não"
	case Select:
		return f.OptionLabel(toString(v))
	case Date:
		if d, err := core.ParseDate(toString(v)); err == nil {
			return d.Format("02/01/2006")
		}
	case DateTime:
		if t, err := time.Parse(dateTimeLayout, toString(v)); err == nil {
			return t.Format("02/01/2006 15:04")
		}
	case Decimal:
		if x, ok := v.(float64); ok {
			return strings.ReplaceAll(strconv.FormatFloat(x, 'f', -1, 64), ".", ",")
		}
	}
	return toString(v)
}

// Input renders a stored value the way the form input expects it back.
func (f Field) Input(v any) string {
	if v == nil {
		return ""
	}
	switch f.Kind {
	case Money:
		if cents, ok := v.(int64); ok {
			return core.FormatInput(cents)
		}
	case Bool:
		if b, ok := v.(bool); ok && b {
			return "on"
		}
		return ""
	case Decimal:
		if x, ok := v.(float64); ok {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return toString(v)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return ""
}
