package core

// validation.go checks create and update payloads against a collection's
// field specs before anything reaches the database.
//
// Create payloads must supply every required field. Update payloads only
// carry the changed fields, but a required field may still not be blanked.

import (
	"fmt"
	"sort"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field name
	Value   any    // The invalid value
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidateValue converts one JSON value for spec, enforcing read-only and
// required rules.
func ValidateValue(spec FieldSpec, value any) (any, error) {
	if spec.ReadOnly {
		return nil, &ValidationError{Field: spec.Name, Value: value, Message: "field is read-only"}
	}
	dbValue, err := toDBValue(value, spec)
	if err != nil {
		return nil, &ValidationError{Field: spec.Name, Value: value, Message: err.Error()}
	}
	if dbValue == nil && spec.Required {
		return nil, &ValidationError{Field: spec.Name, Value: value, Message: "is required"}
	}
	return dbValue, nil
}

// validatePayload converts values to database values keyed by column. With
// partial set only the supplied fields are checked; otherwise every required
// field must be present. Unknown fields are rejected.
func validatePayload(def CollectionDefinition, values map[string]any, partial bool) (map[string]any, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(values))
	for _, name := range names {
		if name == "id" {
			continue
		}
		spec, ok := def.Field(name)
		if !ok {
			return nil, &ValidationError{Field: name, Message: "unknown field"}
		}
		dbValue, err := ValidateValue(spec, values[name])
		if err != nil {
			return nil, err
		}
		out[resolveDBColumn(spec.Name, def.FieldSpecs)] = dbValue
	}

	if !partial {
		for _, spec := range def.FieldSpecs {
			if _, ok := values[spec.Name]; spec.Required && !spec.ReadOnly && !ok {
				return nil, &ValidationError{Field: spec.Name, Message: "is required"}
			}
		}
	}
	return out, nil
}
