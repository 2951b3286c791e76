package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// MinSearchLength is the shortest search text that filters a listing.
const MinSearchLength = 2

// Page size bounds for listings.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// FilterAll is the filter value meaning "no constraint".
const FilterAll = "all"

// ListItems fetches one page of a collection, searched, filtered and sorted.
// A page past the end is clamped to the last page.
func (s *Service) ListItems(ctx context.Context, key string, params ListParams) (*ListResult, error) {
	def, ok := Get(key)
	if !ok {
		return nil, ErrUnknownCollection
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	filters, err := resolveFilters(def, params.Filters)
	if err != nil {
		return nil, err
	}
	orderBy, err := orderClause(def, params.Sort)
	if err != nil {
		return nil, err
	}

	wb := NewWhereBuilder()
	if search := strings.TrimSpace(params.Search); utf8.RuneCountInString(search) >= MinSearchLength {
		wb.AddSearch(search, def.FieldSpecs)
	}
	wb.AddFilters(filters)
	whereClause, queryArgs := wb.Build()

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdentifier(def.Info.Key), whereClause)
	var totalItems int64
	if err := s.pool.QueryRow(ctx, countQuery, queryArgs...).Scan(&totalItems); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	totalPages := int((totalItems + int64(pageSize) - 1) / int64(pageSize))
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	offset := (page - 1) * pageSize

	argIndex := wb.NextArgIndex()
	query := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(quoteColumns(def.columns()), ", "),
		quoteIdentifier(def.Info.Key),
		whereClause,
		orderBy,
		argIndex,
		argIndex+1,
	)
	queryArgs = append(queryArgs, pageSize, offset)

	rows, err := s.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	items, err := collectItems(def, rows)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Items:      items,
		TotalItems: totalItems,
		TotalPages: totalPages,
		Page:       page,
	}, nil
}

// GetItem loads one item by id.
func (s *Service) GetItem(ctx context.Context, key string, id any) (Item, error) {
	def, ok := Get(key)
	if !ok {
		return nil, ErrUnknownCollection
	}
	return getItem(ctx, s.pool, def, id)
}

func getItem(ctx context.Context, db DBTX, def CollectionDefinition, id any) (Item, error) {
	idText, err := idString(id)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		strings.Join(quoteColumns(def.columns()), ", "),
		quoteIdentifier(def.Info.Key),
		quoteIdentifier(def.Info.IDColumn),
	)
	rows, err := db.Query(ctx, query, idText)
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	items, err := collectItems(def, rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// collectItems reads rows selected with def.columns() and closes them.
func collectItems(def CollectionDefinition, rows pgx.Rows) ([]Item, error) {
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		item := make(Item, len(values))
		item["id"] = toJSONValue(values[0])
		for i, spec := range def.FieldSpecs {
			item[spec.Name] = toJSONValue(values[i+1])
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// resolveFilters keeps filters on declared filter fields, drops "all" and
// blank values, and fills in database columns. Unknown filters are an error.
func resolveFilters(def CollectionDefinition, in FilterSet) (FilterSet, error) {
	var out FilterSet
	for _, f := range in.Filters {
		if f.Value == "" || strings.EqualFold(f.Value, FilterAll) {
			continue
		}
		spec, ok := def.Field(f.Column)
		if !ok || !slices.Contains(def.Info.Filters, f.Column) {
			return FilterSet{}, &ValidationError{Field: f.Column, Message: "cannot filter on this field"}
		}
		if f.Operator == "" {
			f.Operator = OpEquals
		}
		f.DBColumn = resolveDBColumn(spec.Name, def.FieldSpecs)
		f.Type = spec.Type
		out.Filters = append(out.Filters, f)
	}
	return out, nil
}

// orderClause validates the sort field and appends the id as a tie-breaker
// so pages are stable.
func orderClause(def CollectionDefinition, sort SortSpec) (string, error) {
	idCol := quoteIdentifier(def.Info.IDColumn)
	dir := "asc"
	if strings.EqualFold(sort.Dir, "desc") {
		dir = "desc"
	}
	if sort.Column == "" || sort.Column == "id" {
		return idCol + " " + dir, nil
	}

	spec, ok := def.Field(sort.Column)
	if !ok {
		return "", &ValidationError{Field: sort.Column, Message: "invalid sort column"}
	}
	col := quoteIdentifier(resolveDBColumn(spec.Name, def.FieldSpecs))
	return fmt.Sprintf("%s %s, %s asc", col, dir, idCol), nil
}

// idString normalizes a JSON id (string or whole number) for use as a query
// argument. PostgreSQL parses the text into the column type.
func idString(id any) (string, error) {
	text, ok := textOf(id)
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return "", &ValidationError{Field: "id", Value: id, Message: "invalid id"}
	}
	if _, isBool := id.(bool); isBool {
		return "", &ValidationError{Field: "id", Value: id, Message: "invalid id"}
	}
	return text, nil
}

// notFound turns pgx.ErrNoRows into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
