package collection

import (
	"strings"
	"time"

	"github.com/JonMunkholm/ev2/internal/precision"
)

// Kind determines how raw input for a field is validated and normalized.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindPrice
	KindDate
	KindChoice
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindPrice:
		return "price"
	case KindDate:
		return "date"
	case KindChoice:
		return "choice"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseKind maps the wire name of a kind back to its value.
func ParseKind(s string) (Kind, bool) {
	for k := KindText; k <= KindBool; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindText, false
}

// Field describes one editable column of a collection.
type Field struct {
	Name     string
	Label    string
	Kind     Kind
	Required bool
	ReadOnly bool
	Options  []string // allowed values for KindChoice
}

// Schema is the set of fields and filter names of a collection.
type Schema struct {
	Name    string
	Fields  []Field
	Filters []string
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Choice-like fields commit faster than free text.
func (f Field) debounced() bool {
	switch f.Kind {
	case KindText, KindNumber, KindPrice:
		return true
	default:
		return false
	}
}

var dateLayouts = []string{
	"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
	"01/02/2006", "1/2/2006",
}

// Normalize validates raw user input and converts it to the value stored on
// the row. Prices are rounded with p. Empty optional input yields nil.
func (f Field) Normalize(raw string, p precision.Policy) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		if f.Required {
			return nil, &ValidationError{Field: f.Name, Reason: ReasonRequired, Message: "required field is empty"}
		}
		if f.Kind == KindText {
			return "", nil
		}
		return nil, nil
	}

	switch f.Kind {
	case KindNumber, KindPrice:
		policy := precision.None
		if f.Kind == KindPrice {
			policy = p
		}
		v, err := precision.Parse(s, policy)
		if err != nil {
			return nil, &ValidationError{Field: f.Name, Reason: ReasonNotNumeric, Message: "invalid number format"}
		}
		return v, nil

	case KindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return nil, &ValidationError{Field: f.Name, Reason: ReasonInvalidDate, Message: "invalid date format (use YYYY-MM-DD)"}

	case KindChoice:
		if len(f.Options) == 0 {
			return s, nil
		}
		for _, opt := range f.Options {
			if strings.EqualFold(opt, s) {
				return opt, nil
			}
		}
		return nil, &ValidationError{Field: f.Name, Reason: ReasonInvalidOption,
			Message: "value must be one of: " + strings.Join(f.Options, ", ")}

	case KindBool:
		switch strings.ToLower(s) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
		return nil, &ValidationError{Field: f.Name, Reason: ReasonInvalidBool, Message: "must be yes/no, true/false, or 1/0"}

	default:
		return s, nil
	}
}
