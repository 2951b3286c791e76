package web

// handlers_common.go contains request parsing helpers shared by the handlers.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/ev2/internal/core"
)

// Query parameters with a fixed meaning on list requests. Every other
// parameter naming a field is an equality filter.
const (
	paramPage         = "page"
	paramItemsPerPage = "itemsPerPage"
	paramSearch       = "searchQuery"
	paramSortBy       = "sortBy"
	paramSortDesc     = "sortDesc"
)

var errEmptyBody = errors.New("request body is empty")

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseListParams reads page, page size, search, sort and filters.
func parseListParams(r *http.Request, def core.CollectionDefinition) core.ListParams {
	q := r.URL.Query()

	params := core.ListParams{
		Page:     parseIntParam(r, paramPage, 1),
		PageSize: parseIntParam(r, paramItemsPerPage, core.DefaultPageSize),
		Search:   strings.TrimSpace(q.Get(paramSearch)),
		Filters:  parseFilters(q, def),
	}
	if col := strings.TrimSpace(q.Get(paramSortBy)); col != "" {
		dir := "asc"
		if desc, _ := strconv.ParseBool(q.Get(paramSortDesc)); desc {
			dir = "desc"
		}
		params.Sort = core.SortSpec{Column: col, Dir: dir}
	}
	return params
}

// parseFilters turns field-named parameters into filters. A plain value is
// an equality match; "filter[field]=op:value" selects another operator.
// Parameters naming no field are ignored.
func parseFilters(q map[string][]string, def core.CollectionDefinition) core.FilterSet {
	var set core.FilterSet
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		switch key {
		case paramPage, paramItemsPerPage, paramSearch, paramSortBy, paramSortDesc:
			continue
		}

		name, op, value := key, core.OpEquals, values[0]
		if strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]") {
			name = key[len("filter[") : len(key)-1]
			parts := strings.SplitN(value, ":", 2)
			if len(parts) != 2 {
				continue
			}
			op, value = core.FilterOperator(parts[0]), parts[1]
		}
		if _, ok := def.Field(name); !ok {
			continue
		}
		set.Filters = append(set.Filters, core.ColumnFilter{
			Column:   name,
			Operator: op,
			Value:    strings.TrimSpace(value),
		})
	}
	return set
}

// decodeJSON reads a JSON object body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return err
		case errors.Is(err, io.EOF):
			return &core.ValidationError{Message: errEmptyBody.Error()}
		default:
			return &core.ValidationError{Message: fmt.Sprintf("invalid JSON body: %v", err)}
		}
	}
	return nil
}

// parseTimeParam accepts RFC 3339 timestamps and plain dates. Blank or
// unparseable values yield the zero time.
func parseTimeParam(r *http.Request, name string) time.Time {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if t, err := time.Parse(core.DateLayout, val); err == nil {
		return t
	}
	return time.Time{}
}
