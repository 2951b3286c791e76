package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelection(t *testing.T) {
	s := NewSelection()

	assert.True(t, s.Toggle("a"))
	assert.True(t, s.Toggle("b"))
	assert.True(t, s.IsSelected("a"))
	assert.Equal(t, 2, s.Size())

	assert.False(t, s.Toggle("a"))
	assert.False(t, s.IsSelected("a"))
	assert.Equal(t, []ID{"b"}, s.IDs())

	s.Toggle("c")
	s.Retain(func(id ID) bool { return id == "c" })
	assert.Equal(t, []ID{"c"}, s.IDs())

	s.rename("c", "d")
	assert.True(t, s.IsSelected("d"))

	s.Clear()
	assert.Zero(t, s.Size())
}

func TestQueryApply(t *testing.T) {
	base := NewQuery(25)
	base.Page = 4

	tests := []struct {
		name     string
		patch    QueryPatch
		wantPage int
		check    func(t *testing.T, q Query, ch queryChange)
	}{
		{
			name:     "page only",
			patch:    QueryPatch{Page: Ptr(2)},
			wantPage: 2,
		},
		{
			name:     "search resets page",
			patch:    QueryPatch{SearchText: Ptr("abc")},
			wantPage: 1,
			check: func(t *testing.T, q Query, ch queryChange) {
				assert.True(t, ch.search)
				assert.Equal(t, "abc", q.SearchText)
			},
		},
		{
			name:     "filter resets page",
			patch:    QueryPatch{Filters: map[string]string{"status": "active"}},
			wantPage: 1,
			check: func(t *testing.T, q Query, ch queryChange) {
				assert.True(t, ch.filters)
				assert.Equal(t, "active", q.Filters["status"])
			},
		},
		{
			name:     "sort resets page even with explicit page",
			patch:    QueryPatch{SortField: Ptr("name"), Page: Ptr(3)},
			wantPage: 1,
		},
		{
			name:     "unchanged values keep page",
			patch:    QueryPatch{PageSize: Ptr(25), Filters: map[string]string{"status": FilterAll}},
			wantPage: 4,
			check: func(t *testing.T, _ Query, ch queryChange) {
				assert.False(t, ch.resetsPage())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ch := base.apply(tt.patch)
			assert.Equal(t, tt.wantPage, q.Page)
			if tt.check != nil {
				tt.check(t, q, ch)
			}
		})
	}
	assert.Empty(t, base.Filters, "apply must not mutate the receiver")
}

func TestQueryApply_FilterAllClears(t *testing.T) {
	q := NewQuery(10)
	q, _ = q.apply(QueryPatch{Filters: map[string]string{"status": "active"}})
	q, ch := q.apply(QueryPatch{Filters: map[string]string{"status": FilterAll}})

	assert.True(t, ch.filters)
	assert.NotContains(t, q.Filters, "status")
}

func TestQuerySearchable(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"a", false},
		{" a ", false},
		{"ab", true},
		{"ü", false},
		{"üb", true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			q := NewQuery(10)
			q.SearchText = tt.text
			assert.Equal(t, tt.want, q.Searchable())
		})
	}
}

func TestQueryValues(t *testing.T) {
	q := NewQuery(50)
	q.Page = 2
	q.SearchText = " widget "
	q.SortField = "price"
	q.SortDescending = true
	q.Filters = map[string]string{"status": "active", "country": FilterAll}

	v := q.Values()
	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "50", v.Get("itemsPerPage"))
	assert.Equal(t, "widget", v.Get("searchQuery"))
	assert.Equal(t, "price", v.Get("sortBy"))
	assert.Equal(t, "true", v.Get("sortDesc"))
	assert.Equal(t, "active", v.Get("status"))
	assert.False(t, v.Has("country"))

	plain := NewQuery(10).Values()
	assert.False(t, plain.Has("searchQuery"))
	assert.False(t, plain.Has("sortBy"))
}

func TestQueryValidate(t *testing.T) {
	q := NewQuery(25)
	require.NoError(t, q.Validate(DefaultPageSizes))

	q.PageSize = 30
	assert.Error(t, q.Validate(DefaultPageSizes))

	q = NewQuery(25)
	q.Page = 0
	assert.Error(t, q.Validate(DefaultPageSizes))

	q = NewQuery(25)
	q.SearchText = "x"
	assert.ErrorIs(t, q.Validate(DefaultPageSizes), ErrSearchTooShort)
}

func TestIDFrom(t *testing.T) {
	id, ok := IDFrom(float64(42))
	assert.True(t, ok)
	assert.Equal(t, ID("42"), id)

	_, ok = IDFrom(1.5)
	assert.False(t, ok)

	id, ok = IDFrom("SKU-1")
	assert.True(t, ok)
	assert.Equal(t, ID("SKU-1"), id)

	_, ok = IDFrom(nil)
	assert.False(t, ok)

	assert.True(t, NewTempID().IsTemp())
	assert.False(t, ID("17").IsTemp())
}
