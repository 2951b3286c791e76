package collection

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MinSearchLen is the shortest non-empty search text that is sent.
	MinSearchLen = 2

	// FilterAll disables a filter; it is never sent.
	FilterAll = "all"
)

// DefaultPageSizes are the selectable items-per-page values.
var DefaultPageSizes = []int{10, 25, 50, 100}

// Query is the full set of list parameters.
type Query struct {
	Page           int
	PageSize       int
	SearchText     string
	SortField      string // empty for server order
	SortDescending bool
	Filters        map[string]string
}

// NewQuery returns the first page with the given size and no constraints.
func NewQuery(pageSize int) Query {
	return Query{Page: 1, PageSize: pageSize, Filters: map[string]string{}}
}

// QueryPatch is a partial update to a Query. Nil fields are left as they are.
// Filters are merged key by key; FilterAll removes a filter.
type QueryPatch struct {
	Page           *int
	PageSize       *int
	SearchText     *string
	SortField      *string
	SortDescending *bool
	Filters        map[string]string
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

// queryChange records which parts of a Query a patch altered.
type queryChange struct {
	search  bool
	filters bool
	other   bool // page size or sort
}

func (c queryChange) resetsPage() bool {
	return c.search || c.filters || c.other
}

// apply merges p into q. Any change other than the page resets the page to 1.
func (q Query) apply(p QueryPatch) (Query, queryChange) {
	next := q.clone()
	var ch queryChange

	if p.SearchText != nil && *p.SearchText != q.SearchText {
		next.SearchText = *p.SearchText
		ch.search = true
	}
	if p.PageSize != nil && *p.PageSize != q.PageSize {
		next.PageSize = *p.PageSize
		ch.other = true
	}
	if p.SortField != nil && *p.SortField != q.SortField {
		next.SortField = *p.SortField
		ch.other = true
	}
	if p.SortDescending != nil && *p.SortDescending != q.SortDescending {
		next.SortDescending = *p.SortDescending
		ch.other = true
	}
	for name, value := range p.Filters {
		cur, ok := next.Filters[name]
		if value == FilterAll || value == "" {
			if ok {
				delete(next.Filters, name)
				ch.filters = true
			}
			continue
		}
		if !ok || cur != value {
			next.Filters[name] = value
			ch.filters = true
		}
	}

	switch {
	case ch.resetsPage():
		next.Page = 1
	case p.Page != nil:
		next.Page = *p.Page
	}
	return next, ch
}

func (q Query) clone() Query {
	c := q
	c.Filters = maps.Clone(q.Filters)
	if c.Filters == nil {
		c.Filters = map[string]string{}
	}
	return c
}

// Searchable reports whether the search text may be sent: empty, or at least
// MinSearchLen characters after trimming.
func (q Query) Searchable() bool {
	s := strings.TrimSpace(q.SearchText)
	return s == "" || utf8.RuneCountInString(s) >= MinSearchLen
}

// Validate checks page bounds and the page size against sizes.
func (q Query) Validate(sizes []int) error {
	if q.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", q.Page)
	}
	if !slices.Contains(sizes, q.PageSize) {
		return fmt.Errorf("page size %d not one of %v", q.PageSize, sizes)
	}
	if !q.Searchable() {
		return ErrSearchTooShort
	}
	return nil
}

// Values encodes q as list request parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("itemsPerPage", strconv.Itoa(q.PageSize))
	if s := strings.TrimSpace(q.SearchText); s != "" {
		v.Set("searchQuery", s)
	}
	if q.SortField != "" {
		v.Set("sortBy", q.SortField)
		v.Set("sortDesc", strconv.FormatBool(q.SortDescending))
	}
	for name, value := range q.Filters {
		if value != "" && value != FilterAll {
			v.Set(name, value)
		}
	}
	return v
}
