package collection

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ID identifies a row. Integer identifiers are kept in their decimal form.
type ID string

const tempPrefix = "tmp-"

// NewTempID returns an identifier for a row that exists only locally.
func NewTempID() ID {
	return ID(tempPrefix + uuid.NewString())
}

// IsTemp reports whether id was minted locally.
func (id ID) IsTemp() bool {
	return strings.HasPrefix(string(id), tempPrefix)
}

// IDFrom converts a decoded JSON identifier to an ID.
func IDFrom(v any) (ID, bool) {
	switch x := v.(type) {
	case string:
		return ID(x), x != ""
	case float64:
		if x != math.Trunc(x) {
			return "", false
		}
		return ID(strconv.FormatFloat(x, 'f', 0, 64)), true
	case int:
		return ID(strconv.Itoa(x)), true
	case int64:
		return ID(strconv.FormatInt(x, 10)), true
	case json.Number:
		return ID(x.String()), true
	default:
		return "", false
	}
}

// Row is one record in the collection view.
//
// Original is the value snapshot last confirmed by the server; a nil
// Original marks a row that has never been saved.
type Row struct {
	ID       ID
	Values   map[string]any
	Original map[string]any

	// Display holds raw input that could not be committed, shown in place of
	// the value until corrected.
	Display map[string]string

	FieldErrors map[string]string
}

func rowFromItem(item Item) *Row {
	return &Row{
		ID:       item.ID,
		Values:   maps.Clone(nonNil(item.Values)),
		Original: maps.Clone(nonNil(item.Values)),
	}
}

func newLocalRow(fields []Field) *Row {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Kind == KindText {
			values[f.Name] = ""
		} else {
			values[f.Name] = nil
		}
	}
	return &Row{ID: NewTempID(), Values: values}
}

// IsNew reports whether the row has never been persisted.
func (r *Row) IsNew() bool {
	return r.Original == nil
}

// Value returns the current value of field.
func (r *Row) Value(field string) any {
	return r.Values[field]
}

// Text returns what an editor should display for field.
func (r *Row) Text(field string) string {
	if s, ok := r.Display[field]; ok {
		return s
	}
	return formatValue(r.Values[field])
}

func (r *Row) setDisplay(field, raw string) {
	if r.Display == nil {
		r.Display = make(map[string]string)
	}
	r.Display[field] = raw
}

func (r *Row) setFieldError(field, msg string) {
	if r.FieldErrors == nil {
		r.FieldErrors = make(map[string]string)
	}
	r.FieldErrors[field] = msg
}

func (r *Row) clearField(field string) {
	delete(r.Display, field)
	delete(r.FieldErrors, field)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
