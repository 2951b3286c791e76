package core

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder accumulates AND-ed conditions with numbered placeholders.
type WhereBuilder struct {
	conditions []string
	args       []interface{}
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends "col = $n". Empty values are skipped.
func (wb *WhereBuilder) Add(col string, val string) {
	if val == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", col, wb.argIndex))
	wb.args = append(wb.args, val)
	wb.argIndex++
}

// AddSearch matches query case-insensitively against every text column.
func (wb *WhereBuilder) AddSearch(query string, specs []FieldSpec) {
	if query == "" {
		return
	}

	var parts []string
	for _, spec := range specs {
		if spec.Type != FieldText {
			continue
		}
		col := quoteIdentifier(resolveDBColumn(spec.Name, specs))
		parts = append(parts, fmt.Sprintf("%s ILIKE $%d", col, wb.argIndex))
	}
	if len(parts) == 0 {
		return
	}

	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
	wb.args = append(wb.args, "%"+query+"%")
	wb.argIndex++
}

// AddFilters appends one condition per column filter.
func (wb *WhereBuilder) AddFilters(filters FilterSet) {
	for _, f := range filters.Filters {
		sql, args, next := buildSingleFilter(f, wb.argIndex)
		if sql == "" {
			continue
		}
		wb.conditions = append(wb.conditions, sql)
		wb.args = append(wb.args, args...)
		wb.argIndex = next
	}
}

// AddTimestampRange bounds col inclusively. Either bound may be nil or zero.
func (wb *WhereBuilder) AddTimestampRange(col string, from, to any) {
	if !zeroBound(from) {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= $%d", col, wb.argIndex))
		wb.args = append(wb.args, from)
		wb.argIndex++
	}
	if !zeroBound(to) {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s <= $%d", col, wb.argIndex))
		wb.args = append(wb.args, to)
		wb.argIndex++
	}
}

func zeroBound(v any) bool {
	switch b := v.(type) {
	case nil:
		return true
	case string:
		return b == ""
	case time.Time:
		return b.IsZero()
	}
	return false
}

// Build returns the " WHERE ..." clause and its arguments, or ("", nil).
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex returns the placeholder number the next argument will take.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// buildSingleFilter generates SQL for a single filter.
func buildSingleFilter(f ColumnFilter, argIdx int) (string, []interface{}, int) {
	col := quoteIdentifier(f.DBColumn)

	switch f.Operator {
	case OpContains:
		return fmt.Sprintf("%s ILIKE $%d", col, argIdx),
			[]interface{}{"%" + f.Value + "%"}, argIdx + 1

	case OpEquals:
		return fmt.Sprintf("%s = $%d", col, argIdx),
			[]interface{}{f.Value}, argIdx + 1

	case OpStartsWith:
		return fmt.Sprintf("%s ILIKE $%d", col, argIdx),
			[]interface{}{f.Value + "%"}, argIdx + 1

	case OpEndsWith:
		return fmt.Sprintf("%s ILIKE $%d", col, argIdx),
			[]interface{}{"%" + f.Value}, argIdx + 1

	case OpGreaterEq:
		return fmt.Sprintf("%s >= $%d", col, argIdx),
			[]interface{}{f.Value}, argIdx + 1

	case OpLessEq:
		return fmt.Sprintf("%s <= $%d", col, argIdx),
			[]interface{}{f.Value}, argIdx + 1

	case OpGreater:
		return fmt.Sprintf("%s > $%d", col, argIdx),
			[]interface{}{f.Value}, argIdx + 1

	case OpLess:
		return fmt.Sprintf("%s < $%d", col, argIdx),
			[]interface{}{f.Value}, argIdx + 1

	case OpIn:
		values := strings.Split(f.Value, ",")
		placeholders := make([]string, len(values))
		filterArgs := make([]interface{}, len(values))
		for i, v := range values {
			placeholders[i] = fmt.Sprintf("$%d", argIdx+i)
			filterArgs[i] = strings.TrimSpace(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")),
			filterArgs, argIdx + len(values)

	default:
		return "", nil, argIdx
	}
}

// resolveDBColumn returns the database column name for a given field name.
// It checks the FieldSpecs for a DBColumn mapping, falling back to snake_case conversion.
func resolveDBColumn(col string, specs []FieldSpec) string {
	for _, spec := range specs {
		if strings.EqualFold(spec.Name, col) && spec.DBColumn != "" {
			return spec.DBColumn
		}
	}
	return toDBColumnName(col)
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteColumns quotes each column name in the slice.
func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
	}
	return quoted
}

// toDBColumnName converts a field name to a database column name.
// "Launch Date" -> "launch_date"
func toDBColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}
