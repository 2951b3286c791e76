package core

// convert.go turns loosely typed JSON input into PostgreSQL values and back.
//
// Clients send strings for most values, so the text parsers are forgiving:
//   - Multiple date formats (US, EU, ISO)
//   - Currency symbols and thousand separators in numbers
//   - Various boolean representations (yes/no, true/false, 1/0)
//
// All ToPg* functions return pgtype values with Valid=false for empty/invalid input.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years more than this many years in the future are moved to the previous century.
var TwoDigitYearPivot = 20

// DateLayout is the wire format of date fields.
const DateLayout = "2006-01-02"

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a string to pgtype.Date.
// ISO layouts are tried first so that "2024-03-05" is never read as US order.
func ToPgDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	return pgtype.Date{Valid: false}
}

// ToPgNumeric converts a string to pgtype.Numeric.
// Handles currency symbols, thousands separators, and accounting negatives "(1.50)".
func ToPgNumeric(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgBool converts a string to pgtype.Bool.
// Accepts true/false, yes/no, t/f, y/n, 1/0.
func ToPgBool(s string) pgtype.Bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}
	case "false", "f", "no", "n", "0":
		return pgtype.Bool{Bool: false, Valid: true}
	default:
		return pgtype.Bool{Valid: false}
	}
}

// textOf renders a JSON scalar as input text. Floats use the shortest exact
// decimal form so 0.1 never turns into 0.1000000000000000055.
func textOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return decimal.NewFromFloat(x).String(), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

// toDBValue converts a JSON value to the pgtype for spec. Blank input
// becomes nil; the caller decides whether that is allowed.
func toDBValue(v any, spec FieldSpec) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.(bool); ok && spec.Type == FieldBool {
		return pgtype.Bool{Bool: b, Valid: true}, nil
	}

	raw, ok := textOf(v)
	if !ok {
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if spec.Normalizer != nil {
		raw = spec.Normalizer(raw)
	}

	switch spec.Type {
	case FieldNumeric, FieldPrice:
		n := ToPgNumeric(raw)
		if !n.Valid {
			return nil, fmt.Errorf("invalid number format")
		}
		return n, nil
	case FieldDate:
		d := ToPgDate(raw)
		if !d.Valid {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD)")
		}
		return d, nil
	case FieldBool:
		b := ToPgBool(raw)
		if !b.Valid {
			return nil, fmt.Errorf("must be yes/no, true/false, or 1/0")
		}
		return b, nil
	case FieldRef:
		// Sent as text so PostgreSQL parses it into the key column type.
		return raw, nil
	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, raw) {
				return ev, nil
			}
		}
		return nil, fmt.Errorf("must be one of: %s", strings.Join(spec.EnumValues, ", "))
	default:
		return ToPgText(raw), nil
	}
}

// toJSONValue converts a value read with rows.Values into its wire form.
func toJSONValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		return x.Format(DateLayout)
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time.Format(DateLayout)
	case [16]byte:
		return uuid.UUID(x).String()
	}
	return v
}
