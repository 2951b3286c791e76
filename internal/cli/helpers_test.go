package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"k8s.io/utils/clock"

	"github.com/JonMunkholm/ev2/internal/apiclient"
	"github.com/JonMunkholm/ev2/internal/collection"
	"github.com/JonMunkholm/ev2/internal/config"
)

var productsInfo = apiclient.CollectionInfo{
	Key:     "products",
	Label:   "Products",
	Group:   "Catalog",
	Filters: []string{"status"},
	Fields: []apiclient.FieldInfo{
		{Name: "name", Label: "Name", Kind: "text", Required: true},
		{Name: "price", Label: "Price", Kind: "price"},
		{Name: "status", Label: "Status", Kind: "choice", Options: []string{"active", "inactive"}},
		{Name: "created_at", Label: "Created", Kind: "date", ReadOnly: true},
	},
}

// fakeAPI is an in-memory products table. Calls arrive on the controller's
// worker goroutines, hence the mutex.
type fakeAPI struct {
	mu      sync.Mutex
	items   []collection.Item
	nextID  int
	lists   []collection.Query
	updates []string // "id:field=value"
	batches [][]collection.Patch
	deletes [][]collection.ID
	creates []map[string]any

	// rejectCreate fails creates whose name matches.
	rejectCreate string
}

func newFakeAPI(n int) *fakeAPI {
	api := &fakeAPI{nextID: n + 1}
	for i := 1; i <= n; i++ {
		api.items = append(api.items, collection.Item{
			ID: collection.ID(fmt.Sprint(i)),
			Values: map[string]any{
				"name":   fmt.Sprintf("Item %02d", i),
				"price":  float64(i) + 0.5,
				"status": "active",
			},
		})
	}
	return api
}

func (a *fakeAPI) List(_ context.Context, q collection.Query) (*collection.Page, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lists = append(a.lists, q)

	var matched []collection.Item
	search := strings.ToLower(strings.TrimSpace(q.SearchText))
	for _, it := range a.items {
		name, _ := it.Values["name"].(string)
		if search != "" && !strings.Contains(strings.ToLower(name), search) {
			continue
		}
		if st, ok := q.Filters["status"]; ok && it.Values["status"] != st {
			continue
		}
		matched = append(matched, collection.Item{ID: it.ID, Values: maps.Clone(it.Values)})
	}
	total := len(matched)
	start := min((q.Page-1)*q.PageSize, total)
	end := min(start+q.PageSize, total)
	return &collection.Page{
		Items:      matched[start:end],
		TotalItems: total,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

func (a *fakeAPI) Create(_ context.Context, values map[string]any) (*collection.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creates = append(a.creates, maps.Clone(values))
	if a.rejectCreate != "" && values["name"] == a.rejectCreate {
		return nil, &collection.ApplicationError{Message: "A record with this name already exists", Code: "DUPLICATE_NAME", Field: "name"}
	}
	item := collection.Item{ID: collection.ID(fmt.Sprint(a.nextID)), Values: maps.Clone(values)}
	a.nextID++
	a.items = append(a.items, item)
	return &collection.Item{ID: item.ID, Values: maps.Clone(values)}, nil
}

func (a *fakeAPI) UpdateField(_ context.Context, id collection.ID, field string, value any) (*collection.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, fmt.Sprintf("%s:%s=%v", id, field, value))
	return a.setLocked(id, map[string]any{field: value}), nil
}

func (a *fakeAPI) setLocked(id collection.ID, changes map[string]any) *collection.Item {
	for i := range a.items {
		if a.items[i].ID == id {
			maps.Copy(a.items[i].Values, changes)
			return &collection.Item{ID: id, Values: maps.Clone(a.items[i].Values)}
		}
	}
	return nil
}

func (a *fakeAPI) UpdateItems(_ context.Context, patches []collection.Patch) (*collection.BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, patches)
	res := &collection.BatchResult{}
	for _, p := range patches {
		a.setLocked(p.ID, p.Changes)
		res.Succeeded = append(res.Succeeded, p.ID)
	}
	return res, nil
}

// DeleteItems fails ids it does not hold.
func (a *fakeAPI) DeleteItems(_ context.Context, ids []collection.ID) (*collection.BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deletes = append(a.deletes, slices.Clone(ids))
	res := &collection.BatchResult{}
	for _, id := range ids {
		idx := slices.IndexFunc(a.items, func(it collection.Item) bool { return it.ID == id })
		if idx < 0 {
			res.Failed = append(res.Failed, collection.ItemError{ID: id, Message: "Record not found", Code: "NOT_FOUND"})
			continue
		}
		a.items = slices.Delete(a.items, idx, idx+1)
		res.Succeeded = append(res.Succeeded, id)
	}
	res.TotalErrors = len(res.Failed)
	return res, nil
}

func (a *fakeAPI) snapshot() (lists []collection.Query, updates []string, deletes [][]collection.ID, creates []map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.lists), slices.Clone(a.updates), slices.Clone(a.deletes), slices.Clone(a.creates)
}

func (a *fakeAPI) item(id collection.ID) map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, it := range a.items {
		if it.ID == id {
			return maps.Clone(it.Values)
		}
	}
	return nil
}

type fakeBackend struct {
	infos []apiclient.CollectionInfo
	apis  map[string]*fakeAPI
}

func newFakeBackend(api *fakeAPI) *fakeBackend {
	return &fakeBackend{
		infos: []apiclient.CollectionInfo{productsInfo},
		apis:  map[string]*fakeAPI{"products": api},
	}
}

func (b *fakeBackend) Collections(context.Context) ([]apiclient.CollectionInfo, error) {
	return b.infos, nil
}

func (b *fakeBackend) Describe(_ context.Context, key string) (apiclient.CollectionInfo, error) {
	for _, ci := range b.infos {
		if ci.Key == key {
			return ci, nil
		}
	}
	return apiclient.CollectionInfo{}, fmt.Errorf("unknown collection %q", key)
}

func (b *fakeBackend) API(key string) collection.API {
	return b.apis[key]
}

// syncBuffer is written from the loop and from worker goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes ev2ctl against b with the given stdin.
func run(t *testing.T, b Backend, stdin string, args ...string) result {
	t.Helper()

	connect := func(*config.ClientConfig, *slog.Logger) (Backend, error) { return b, nil }
	cmd := newRootCommand(connect, clock.RealClock{})

	var stdout, stderr syncBuffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
