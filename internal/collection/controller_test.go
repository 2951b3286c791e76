package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh_LoadsFirstPage(t *testing.T) {
	h := newHarness(t, newFakeAPI(25), Options{})

	res, err := await(h, h.c.Refresh())
	require.NoError(t, err)

	assert.Equal(t, 25, res.TotalItems)
	assert.Equal(t, 3, res.TotalPages)
	assert.Len(t, h.c.Rows(), 10)
	assert.False(t, h.c.Loading())
	assert.Equal(t, "Item 01", h.c.Rows()[0].Value("name"))
	assert.False(t, IsChanged(h.c.Rows()[0], h.c.Precision()), "fresh rows start unchanged")
}

func TestSetQuery_CoalescesWithinOneTurn(t *testing.T) {
	h := newHarness(t, newFakeAPI(25), Options{})

	f1 := h.c.SetFilter("status", "active")
	f2 := h.c.SetSort("name", true)

	_, err := await(h, f2)
	require.NoError(t, err)
	_, err = await(h, f1)
	require.NoError(t, err)

	require.Equal(t, 1, h.api.listCount(), "one request for both changes")
	q := h.api.lastList()
	assert.Equal(t, "active", q.Filters["status"])
	assert.Equal(t, "name", q.SortField)
	assert.True(t, q.SortDescending)
}

func TestSetQuery_NonPageChangeResetsPage(t *testing.T) {
	h := newHarness(t, newFakeAPI(25), Options{})
	h.load()

	_, err := await(h, h.c.SetPage(3))
	require.NoError(t, err)
	assert.Equal(t, 3, h.c.Query().Page)

	_, err = await(h, h.c.SetSort("name", false))
	require.NoError(t, err)
	assert.Equal(t, 1, h.c.Query().Page)
	assert.Equal(t, 1, h.api.lastList().Page)

	_, err = await(h, h.c.SetPage(2))
	require.NoError(t, err)
	_, err = await(h, h.c.SetQuery(QueryPatch{PageSize: Ptr(25)}))
	require.NoError(t, err)
	assert.Equal(t, 1, h.c.Query().Page)
	assert.Equal(t, 25, h.api.lastList().PageSize)
}

func TestSetQuery_IgnoresUnsupportedPageSize(t *testing.T) {
	h := newHarness(t, newFakeAPI(5), Options{})

	_, err := await(h, h.c.SetQuery(QueryPatch{PageSize: Ptr(7)}))
	require.NoError(t, err)
	assert.Equal(t, 10, h.api.lastList().PageSize)
}

func TestFetch_StaleResponseDiscarded(t *testing.T) {
	api := newFakeAPI(0)
	gates := map[string]chan struct{}{
		"first":  make(chan struct{}),
		"second": make(chan struct{}),
	}
	api.listHook = func(_ context.Context, q Query) (*Page, error) {
		<-gates[q.SearchText]
		return &Page{
			Items:      []Item{{ID: ID(q.SearchText), Values: map[string]any{"name": q.SearchText}}},
			TotalItems: 1,
			TotalPages: 1,
		}, nil
	}
	h := newHarness(t, api, Options{})

	h.c.SetSearchText("first")
	older := h.c.Search()
	h.loop.RunPending()

	h.c.SetSearchText("second")
	newer := h.c.Search()
	h.waitFor(func() bool { return api.listCount() == 2 })

	// The newer request completes first.
	close(gates["second"])
	res, err := await(h, newer)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Query.SearchText)

	// The older one arrives afterwards and must not overwrite the state.
	close(gates["first"])
	_, err = await(h, older)
	assert.ErrorIs(t, err, ErrSuperseded)

	require.Len(t, h.c.Rows(), 1)
	assert.Equal(t, ID("second"), h.c.Rows()[0].ID)
	assert.Equal(t, "second", h.c.Query().SearchText)
}

func TestFetch_StaleFailureIgnored(t *testing.T) {
	api := newFakeAPI(3)
	release := make(chan struct{})
	api.listHook = func(ctx context.Context, q Query) (*Page, error) {
		if q.Page == 1 && q.SearchText == "" {
			<-release
			return nil, &NetworkError{Op: "list", Err: errors.New("connection reset")}
		}
		return api.page(q), nil
	}
	h := newHarness(t, api, Options{})

	older := h.c.Refresh()
	h.loop.RunPending()
	newer := h.c.SetSearchText("item")
	h.c.Search()

	_, err := await(h, newer)
	require.NoError(t, err)

	close(release)
	_, err = await(h, older)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.NoError(t, h.c.Err())
	assert.Empty(t, h.notes.errors)
}

func TestSearch_Debounced(t *testing.T) {
	h := newHarness(t, newFakeAPI(25), Options{})
	h.load()
	base := h.api.listCount()

	f1 := h.c.SetSearchText("it")
	h.step(300 * time.Millisecond)
	f2 := h.c.SetSearchText("ite")
	h.step(300 * time.Millisecond)
	assert.Equal(t, base, h.api.listCount(), "no request while typing")

	h.step(200 * time.Millisecond)
	_, err := await(h, f2)
	require.NoError(t, err)
	_, err = await(h, f1)
	require.NoError(t, err)

	assert.Equal(t, base+1, h.api.listCount())
	assert.Equal(t, "ite", h.api.lastList().SearchText)
}

func TestSearch_ExplicitTriggerSkipsDebounce(t *testing.T) {
	h := newHarness(t, newFakeAPI(25), Options{})
	h.load()
	base := h.api.listCount()

	h.c.SetSearchText("item 1")
	_, err := await(h, h.c.Search())
	require.NoError(t, err)
	assert.Equal(t, base+1, h.api.listCount())

	// The debounce was cancelled.
	h.step(time.Second)
	assert.Equal(t, base+1, h.api.listCount())
}

func TestSearch_BelowThresholdNeverSent(t *testing.T) {
	h := newHarness(t, newFakeAPI(25), Options{})
	h.load()
	base := h.api.listCount()
	before := h.c.Rows()

	f := h.c.SetSearchText("a")
	h.step(time.Second)
	_, err := await(h, f)
	assert.ErrorIs(t, err, ErrSearchTooShort)

	_, err = await(h, h.c.Search())
	assert.ErrorIs(t, err, ErrSearchTooShort)

	_, err = await(h, h.c.SetPage(2))
	assert.ErrorIs(t, err, ErrSearchTooShort)

	assert.Equal(t, base, h.api.listCount())
	assert.Equal(t, before, h.c.Rows(), "previous result set retained")

	f = h.c.SetSearchText("")
	h.step(500 * time.Millisecond)
	_, err = await(h, f)
	require.NoError(t, err)
	assert.Equal(t, base+1, h.api.listCount())
}

func TestFetch_ClampsPageWithoutRefetch(t *testing.T) {
	api := newFakeAPI(25)
	h := newHarness(t, api, Options{})
	h.load()

	_, err := await(h, h.c.SetPage(3))
	require.NoError(t, err)
	require.Len(t, h.c.Rows(), 5)

	// Remove the last page on the server, then refresh.
	api.mu.Lock()
	api.items = api.items[:20]
	api.mu.Unlock()
	calls := api.listCount()

	res, err := await(h, h.c.Refresh())
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPages)
	assert.Equal(t, 2, h.c.Query().Page)
	assert.Equal(t, 2, res.Query.Page)

	h.step(time.Second)
	assert.Equal(t, calls+1, api.listCount(), "clamping must not trigger another fetch")
}

func TestFetch_EmptyResultClampsToFirstPage(t *testing.T) {
	api := newFakeAPI(15)
	h := newHarness(t, api, Options{})
	_, err := await(h, h.c.SetPage(2))
	require.NoError(t, err)

	api.mu.Lock()
	api.items = nil
	api.mu.Unlock()

	_, err = await(h, h.c.Refresh())
	require.NoError(t, err)
	assert.Equal(t, 1, h.c.Query().Page)
	assert.Empty(t, h.c.Rows())
}

func TestFetch_FailureKeepsPreviousRows(t *testing.T) {
	api := newFakeAPI(5)
	h := newHarness(t, api, Options{})
	h.load()
	before := h.c.Rows()

	api.listHook = func(context.Context, Query) (*Page, error) {
		return nil, &NetworkError{Op: "list", Err: errors.New("dial tcp: refused")}
	}
	_, err := await(h, h.c.Refresh())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	assert.Equal(t, before, h.c.Rows())
	assert.Error(t, h.c.Err())
	assert.Equal(t, []string{MsgNetworkError}, h.notes.errors)
}

func TestFetch_ApplicationErrorMessageSurfaced(t *testing.T) {
	api := newFakeAPI(5)
	api.listHook = func(context.Context, Query) (*Page, error) {
		return nil, &ApplicationError{Message: "invalid sort column", Code: "VALIDATION"}
	}
	h := newHarness(t, api, Options{})

	_, err := await(h, h.c.Refresh())
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, []string{"invalid sort column"}, h.notes.errors)
}

func TestSelection_PrunedOnFilterChange(t *testing.T) {
	api := newFakeAPI(4)
	api.items[1].Values["status"] = "inactive"
	h := newHarness(t, api, Options{})
	h.load()

	h.c.Selection().Toggle("1")
	h.c.Selection().Toggle("2")

	_, err := await(h, h.c.SetFilter("status", "active"))
	require.NoError(t, err)

	assert.True(t, h.c.Selection().IsSelected("1"))
	assert.False(t, h.c.Selection().IsSelected("2"))
	assert.Equal(t, 1, h.c.Selection().Size())
}

func TestSelection_KeptAcrossPages(t *testing.T) {
	h := newHarness(t, newFakeAPI(25), Options{})
	h.load()

	h.c.Selection().Toggle("1")
	_, err := await(h, h.c.SetPage(2))
	require.NoError(t, err)

	assert.True(t, h.c.Selection().IsSelected("1"))
	assert.Nil(t, h.c.Row("1"))
}

func TestAddEmptyRow_SurvivesRefresh(t *testing.T) {
	h := newHarness(t, newFakeAPI(3), Options{})
	h.load()

	id := h.c.AddEmptyRow()
	require.True(t, id.IsTemp())
	assert.Equal(t, id, h.c.Rows()[0].ID)
	assert.True(t, h.c.Row(id).IsNew())

	h.load()
	require.NotNil(t, h.c.Row(id))
	assert.Len(t, h.c.Rows(), 4)

	h.c.RemoveLocal(id)
	assert.Nil(t, h.c.Row(id))
	assert.Len(t, h.c.Rows(), 3)
}

type fixedSession bool

func (s fixedSession) IsAuthenticated() bool { return bool(s) }

func TestFetch_RequiresSession(t *testing.T) {
	api := newFakeAPI(3)
	h := newHarness(t, api, Options{Session: fixedSession(false)})

	_, err := await(h, h.c.Refresh())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, api.listCount())
}

func TestOnChange_Notified(t *testing.T) {
	h := newHarness(t, newFakeAPI(3), Options{})
	calls := 0
	h.c.OnChange(func() { calls++ })

	h.load()
	assert.GreaterOrEqual(t, calls, 2, "loading and loaded")
}
