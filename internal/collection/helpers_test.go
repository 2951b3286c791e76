package collection

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/JonMunkholm/ev2/internal/eventloop"
	"github.com/JonMunkholm/ev2/internal/precision"
)

var testSchema = Schema{
	Name: "products",
	Fields: []Field{
		{Name: "name", Kind: KindText, Required: true},
		{Name: "description", Kind: KindText},
		{Name: "price", Kind: KindPrice},
		{Name: "quantity", Kind: KindNumber},
		{Name: "status", Kind: KindChoice, Options: []string{"active", "inactive"}},
		{Name: "launch_date", Kind: KindDate},
	},
	Filters: []string{"status"},
}

type fieldUpdate struct {
	ID    ID
	Field string
	Value any
}

// fakeAPI serves an in-memory table and records every call. Hooks replace
// the default behavior per test.
type fakeAPI struct {
	mu      sync.Mutex
	items   []Item
	nextID  int
	lists   []Query
	updates []fieldUpdate
	batches [][]Patch
	deletes [][]ID
	creates []map[string]any

	listHook        func(ctx context.Context, q Query) (*Page, error)
	updateHook      func(u fieldUpdate) error
	updateItemsHook func(patches []Patch) (*BatchResult, error)
	deleteItemsHook func(ids []ID) (*BatchResult, error)
	createHook      func(values map[string]any) (*Item, error)
}

func newFakeAPI(n int) *fakeAPI {
	api := &fakeAPI{}
	for i := 1; i <= n; i++ {
		api.items = append(api.items, Item{
			ID: ID(fmt.Sprint(i)),
			Values: map[string]any{
				"name":   fmt.Sprintf("Item %02d", i),
				"price":  float64(i) + 0.5,
				"status": "active",
			},
		})
	}
	api.nextID = n + 1
	return api
}

func (a *fakeAPI) List(ctx context.Context, q Query) (*Page, error) {
	a.mu.Lock()
	a.lists = append(a.lists, q)
	hook := a.listHook
	a.mu.Unlock()
	if hook != nil {
		return hook(ctx, q)
	}
	return a.page(q), nil
}

func (a *fakeAPI) page(q Query) *Page {
	a.mu.Lock()
	defer a.mu.Unlock()

	var matched []Item
	search := strings.ToLower(strings.TrimSpace(q.SearchText))
	for _, it := range a.items {
		name, _ := it.Values["name"].(string)
		if search != "" && !strings.Contains(strings.ToLower(name), search) {
			continue
		}
		if st, ok := q.Filters["status"]; ok && it.Values["status"] != st {
			continue
		}
		matched = append(matched, Item{ID: it.ID, Values: maps.Clone(it.Values)})
	}

	total := len(matched)
	pages := (total + q.PageSize - 1) / q.PageSize
	start := min((q.Page-1)*q.PageSize, total)
	end := min(start+q.PageSize, total)
	return &Page{Items: matched[start:end], TotalItems: total, TotalPages: pages}
}

func (a *fakeAPI) UpdateField(_ context.Context, id ID, field string, value any) (*Item, error) {
	u := fieldUpdate{ID: id, Field: field, Value: value}
	a.mu.Lock()
	a.updates = append(a.updates, u)
	hook := a.updateHook
	a.mu.Unlock()
	if hook != nil {
		if err := hook(u); err != nil {
			return nil, err
		}
	}
	return a.set(id, map[string]any{field: value}), nil
}

func (a *fakeAPI) set(id ID, changes map[string]any) *Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.items {
		if a.items[i].ID == id {
			maps.Copy(a.items[i].Values, changes)
			return &Item{ID: id, Values: maps.Clone(a.items[i].Values)}
		}
	}
	return nil
}

func (a *fakeAPI) UpdateItems(_ context.Context, patches []Patch) (*BatchResult, error) {
	a.mu.Lock()
	a.batches = append(a.batches, patches)
	hook := a.updateItemsHook
	a.mu.Unlock()
	if hook != nil {
		return hook(patches)
	}
	res := &BatchResult{}
	for _, p := range patches {
		a.set(p.ID, p.Changes)
		res.Succeeded = append(res.Succeeded, p.ID)
	}
	return res, nil
}

func (a *fakeAPI) DeleteItems(_ context.Context, ids []ID) (*BatchResult, error) {
	a.mu.Lock()
	a.deletes = append(a.deletes, ids)
	hook := a.deleteItemsHook
	a.mu.Unlock()
	if hook != nil {
		return hook(ids)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = slices.DeleteFunc(a.items, func(it Item) bool { return slices.Contains(ids, it.ID) })
	return &BatchResult{Succeeded: ids}, nil
}

func (a *fakeAPI) Create(_ context.Context, values map[string]any) (*Item, error) {
	a.mu.Lock()
	a.creates = append(a.creates, values)
	hook := a.createHook
	a.mu.Unlock()
	if hook != nil {
		return hook(values)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	item := Item{ID: ID(fmt.Sprint(a.nextID)), Values: maps.Clone(values)}
	a.nextID++
	a.items = append(a.items, item)
	return &Item{ID: item.ID, Values: maps.Clone(values)}, nil
}

func (a *fakeAPI) listCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lists)
}

func (a *fakeAPI) lastList() Query {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lists[len(a.lists)-1]
}

func (a *fakeAPI) updateCalls() []fieldUpdate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.updates)
}

type recordingNotifier struct {
	mu       sync.Mutex
	success  []string
	errors   []string
	warnings []string
	infos    []string
}

func (n *recordingNotifier) ShowSuccess(m string) { n.add(&n.success, m) }
func (n *recordingNotifier) ShowError(m string)   { n.add(&n.errors, m) }
func (n *recordingNotifier) ShowWarning(m string) { n.add(&n.warnings, m) }
func (n *recordingNotifier) ShowInfo(m string)    { n.add(&n.infos, m) }

func (n *recordingNotifier) add(dst *[]string, m string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	*dst = append(*dst, m)
}

type harness struct {
	t     *testing.T
	clk   *clocktesting.FakeClock
	loop  *eventloop.Loop
	api   *fakeAPI
	notes *recordingNotifier
	c     *Collection
}

func newHarness(t *testing.T, api *fakeAPI, opts Options) *harness {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	loop := eventloop.New(clk)
	notes := &recordingNotifier{}

	if opts.Schema.Name == "" {
		opts.Schema = testSchema
	}
	if !opts.Precision.Valid() {
		opts.Precision = precision.Places(2)
	}
	opts.Notifier = notes
	opts.PageSize = 10

	c := New(loop, api, opts)
	t.Cleanup(c.Close)
	return &harness{t: t, clk: clk, loop: loop, api: api, notes: notes, c: c}
}

// await pumps the loop until f resolves.
func await[T any](h *harness, f *eventloop.Future[T]) (T, error) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := eventloop.Await(ctx, h.loop, f)
	require.NotErrorIs(h.t, err, context.DeadlineExceeded, "future did not resolve")
	return v, err
}

// waitFor pumps the loop until cond holds.
func (h *harness) waitFor(cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.loop.RunPending()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatal("condition not met before deadline")
}

// load fetches the first page.
func (h *harness) load() {
	h.t.Helper()
	_, err := await(h, h.c.Refresh())
	require.NoError(h.t, err)
}

// step advances the fake clock and runs whatever the timers posted.
func (h *harness) step(d time.Duration) {
	h.clk.Step(d)
	h.loop.RunPending()
}
