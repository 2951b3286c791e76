package collection

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/JonMunkholm/ev2/internal/precision"
)

// IsChanged reports whether any field of r differs from its original value.
// New rows are never changed.
func IsChanged(r *Row, p precision.Policy) bool {
	if r.IsNew() {
		return false
	}
	for field, orig := range r.Original {
		if !valuesEqual(r.Values[field], orig, p) {
			return true
		}
	}
	return false
}

// ChangedFields lists the differing fields of r in name order.
func ChangedFields(r *Row, p precision.Policy) []string {
	if r.IsNew() {
		return nil
	}
	var out []string
	for field, orig := range r.Original {
		if !valuesEqual(r.Values[field], orig, p) {
			out = append(out, field)
		}
	}
	slices.Sort(out)
	return out
}

// ChangedCount returns how many rows are changed.
func ChangedCount(rows []*Row, p precision.Policy) int {
	n := 0
	for _, r := range rows {
		if IsChanged(r, p) {
			n++
		}
	}
	return n
}

// PatchFor builds a partial update holding only the differing fields of r.
func PatchFor(r *Row, p precision.Policy) (Patch, bool) {
	fields := ChangedFields(r, p)
	if len(fields) == 0 {
		return Patch{}, false
	}
	changes := make(map[string]any, len(fields))
	for _, f := range fields {
		changes[f] = r.Values[f]
	}
	return Patch{ID: r.ID, Changes: changes}, true
}

// acceptPatch records the sent values as confirmed by the server.
func acceptPatch(r *Row, changes map[string]any) {
	if r.Original == nil {
		r.Original = make(map[string]any, len(changes))
	}
	maps.Copy(r.Original, changes)
}

// valuesEqual compares numbers after rounding with p and everything else by
// exact string form. Nil and the empty string are the same blank value.
func valuesEqual(a, b any, p precision.Policy) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return precision.Equal(fa, fb, p)
		}
	}
	if isBlank(a) && isBlank(b) {
		return true
	}
	if isBlank(a) != isBlank(b) {
		return false
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return sa == sb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
