package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/ev2/internal/config"
	"github.com/JonMunkholm/ev2/internal/core"
)

func widgets() core.CollectionDefinition {
	return core.CollectionDefinition{
		Info: core.CollectionInfo{
			Key:      "widgets",
			Group:    "Catalog",
			Label:    "Widgets",
			IDColumn: "id",
			Filters:  []string{"status"},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "name", Label: "Name", Type: core.FieldText, Required: true},
			{Name: "status", Label: "Status", Type: core.FieldEnum, EnumValues: []string{"active", "inactive"}},
			{Name: "price", Label: "Price", Type: core.FieldPrice},
			{Name: "protected", Label: "Protected", Type: core.FieldBool, ReadOnly: true},
		},
	}
}

// fakeStore records the last call and returns canned results.
type fakeStore struct {
	listParams  core.ListParams
	created     map[string]any
	updatedID   any
	updated     map[string]any
	batch       []core.ItemUpdate
	deleted     []any
	auditFilter core.AuditFilter
	requestInfo core.RequestInfo

	err     error
	pingErr error
}

func (f *fakeStore) ListCollections() []core.CollectionDefinition {
	return []core.CollectionDefinition{widgets()}
}

func (f *fakeStore) Describe(key string) (core.CollectionDefinition, error) {
	if key != "widgets" {
		return core.CollectionDefinition{}, core.ErrUnknownCollection
	}
	return widgets(), nil
}

func (f *fakeStore) ListItems(_ context.Context, _ string, params core.ListParams) (*core.ListResult, error) {
	f.listParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &core.ListResult{
		Items:      []core.Item{{"id": "w1", "name": "Basic"}},
		TotalItems: 1,
		TotalPages: 1,
		Page:       1,
	}, nil
}

func (f *fakeStore) CreateItem(ctx context.Context, _ string, values map[string]any) (core.Item, error) {
	f.created = values
	f.requestInfo = core.RequestInfoFrom(ctx)
	if f.err != nil {
		return nil, f.err
	}
	item := core.Item{"id": "new"}
	for k, v := range values {
		item[k] = v
	}
	return item, nil
}

func (f *fakeStore) UpdateItem(ctx context.Context, _ string, id any, changes map[string]any) (core.Item, error) {
	f.updatedID, f.updated = id, changes
	f.requestInfo = core.RequestInfoFrom(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return core.Item{"id": id, "name": changes["name"]}, nil
}

func (f *fakeStore) UpdateItems(_ context.Context, _ string, updates []core.ItemUpdate) (*core.BatchResult, error) {
	f.batch = updates
	if f.err != nil {
		return nil, f.err
	}
	res := &core.BatchResult{}
	for _, u := range updates {
		if u.ItemCode == "bad" {
			res.ErrorItems = append(res.ErrorItems, core.ItemError{ItemCode: u.ItemCode, Message: "record not found", Code: core.CodeNotFound})
			res.TotalErrors++
			continue
		}
		res.Succeeded = append(res.Succeeded, u.ItemCode)
	}
	return res, nil
}

func (f *fakeStore) DeleteItems(_ context.Context, _ string, ids []any) (*core.BatchResult, error) {
	f.deleted = ids
	if f.err != nil {
		return nil, f.err
	}
	return &core.BatchResult{Succeeded: ids}, nil
}

func (f *fakeStore) ListAudit(_ context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	f.auditFilter = filter
	return nil, f.err
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MaxBodySize:    1024,
		},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, store *fakeStore, cfg *config.Config) *Server {
	t.Helper()
	s := NewServer(store, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Field   string          `json:"field"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("User-Agent", "ev2-test")
	req.RemoteAddr = "203.0.113.5:41000"

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec, env
}

func TestHealth(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	rec, env := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	store.pingErr = errors.New("connection refused")
	rec, env = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

func TestListCollections(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testConfig())

	rec, env := do(t, s, http.MethodGet, "/api/collections", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Collections []CollectionInfo `json:"collections"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Collections, 1)

	c := data.Collections[0]
	assert.Equal(t, "widgets", c.Key)
	assert.Equal(t, []string{"status"}, c.Filters)
	require.Len(t, c.Fields, 4)
	assert.Equal(t, "choice", c.Fields[1].Kind)
	assert.Equal(t, []string{"active", "inactive"}, c.Fields[1].Options)
	assert.Equal(t, "price", c.Fields[2].Kind)
	assert.True(t, c.Fields[3].ReadOnly)
	assert.True(t, c.Fields[0].Required)
}

func TestListItems_ParsesQuery(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	rec, env := do(t, s, http.MethodGet,
		"/api/widgets?page=3&itemsPerPage=50&searchQuery=+basic+&sortBy=name&sortDesc=true&status=active&bogus=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	p := store.listParams
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.PageSize)
	assert.Equal(t, "basic", p.Search)
	assert.Equal(t, core.SortSpec{Column: "name", Dir: "desc"}, p.Sort)
	require.Len(t, p.Filters.Filters, 1)
	assert.Equal(t, core.ColumnFilter{Column: "status", Operator: core.OpEquals, Value: "active"}, p.Filters.Filters[0])

	var data struct {
		Items      []map[string]any `json:"items"`
		TotalItems int              `json:"totalItems"`
		TotalPages int              `json:"totalPages"`
		Pagination struct {
			TotalItems int `json:"totalItems"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.TotalItems)
	assert.Equal(t, 1, data.Pagination.TotalItems)
	assert.Equal(t, "w1", data.Items[0]["id"])
}

func TestListItems_Defaults(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	do(t, s, http.MethodGet, "/api/widgets?page=zero&sortBy=price", "")
	assert.Equal(t, 1, store.listParams.Page)
	assert.Equal(t, core.DefaultPageSize, store.listParams.PageSize)
	assert.Equal(t, "asc", store.listParams.Sort.Dir)
	assert.Empty(t, store.listParams.Filters.Filters)
}

func TestListItems_OperatorFilter(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	do(t, s, http.MethodGet, "/api/widgets?filter%5Bprice%5D=gte:10", "")
	require.Len(t, store.listParams.Filters.Filters, 1)
	assert.Equal(t, core.OpGreaterEq, store.listParams.Filters.Filters[0].Operator)
	assert.Equal(t, "10", store.listParams.Filters.Filters[0].Value)
}

func TestListItems_UnknownCollection(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testConfig())

	rec, env := do(t, s, http.MethodGet, "/api/gadgets", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, core.CodeNotFound, env.Code)
}

func TestCreate(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	rec, env := do(t, s, http.MethodPost, "/api/widgets/create", `{"id":"ignored","name":"Pro","price":19.99}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, map[string]any{"name": "Pro", "price": 19.99}, store.created)
	assert.Equal(t, core.RequestInfo{IPAddress: "203.0.113.5", UserAgent: "ev2-test"}, store.requestInfo)

	var data struct {
		Item map[string]any `json:"item"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "new", data.Item["id"])
}

func TestUpdate(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	rec, env := do(t, s, http.MethodPost, "/api/widgets/update", `{"id":7,"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, float64(7), store.updatedID)
	assert.Equal(t, map[string]any{"name": "Renamed"}, store.updated)
}

func TestUpdate_MissingID(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testConfig())

	rec, env := do(t, s, http.MethodPost, "/api/widgets/update", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeValidation, env.Code)
	assert.Equal(t, "id", env.Field)
}

func TestMutationErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"duplicate", fmt.Errorf("create: %w", core.ErrDuplicateName), http.StatusConflict, core.CodeDuplicateName, ""},
		{"protected", core.ErrProtected, http.StatusForbidden, core.CodeProtectedRecord, ""},
		{"not found", core.ErrNotFound, http.StatusNotFound, core.CodeNotFound, ""},
		{"validation", &core.ValidationError{Field: "price", Message: "invalid number"}, http.StatusBadRequest, core.CodeValidation, "price"},
		{"busy", core.ErrTooManyBatches, http.StatusServiceUnavailable, "", ""},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeStore{err: tt.err}, testConfig())
			rec, env := do(t, s, http.MethodPost, "/api/widgets/update", `{"id":"w1","name":"x"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, env.Code)
			}
			assert.Equal(t, tt.wantField, env.Field)
			assert.NotContains(t, env.Message, "boom")
		})
	}
}

func TestUpdateItems(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	body := `{"updates":[{"itemCode":"a","changes":{"status":"active"}},{"itemCode":"bad","changes":{"status":"active"}}]}`
	rec, env := do(t, s, http.MethodPost, "/api/widgets/updateItems", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.batch, 2)
	assert.Equal(t, map[string]any{"status": "active"}, store.batch[0].Changes)

	assert.JSONEq(t,
		`{"updatedItems":["a"],"totalUpdated":1,"errorItems":[{"itemCode":"bad","message":"record not found","code":"NOT_FOUND"}],"totalErrors":1}`,
		string(env.Data))
	assert.Equal(t, "1 item updated, 1 failed", env.Message)
}

func TestDeleteItems(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	rec, env := do(t, s, http.MethodPost, "/api/widgets/deleteItems", `{"itemCodes":["a",2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"a", float64(2)}, store.deleted)
	assert.JSONEq(t, `{"deletedItems":["a",2],"totalDeleted":2,"errorItems":[],"totalErrors":0}`, string(env.Data))
}

func TestBadBodies(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testConfig())

	rec, env := do(t, s, http.MethodPost, "/api/widgets/create", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeValidation, env.Code)

	big := `{"name":"` + strings.Repeat("x", 2048) + `"}`
	rec, env = do(t, s, http.MethodPost, "/api/widgets/create", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, env.Success)
}

func TestListAudit(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, store, testConfig())

	rec, env := do(t, s, http.MethodGet, "/api/audit?collection=widgets&from=2026-01-01&to=2026-02-01T00:00:00Z&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[]}`, string(env.Data))

	f := store.auditFilter
	assert.Equal(t, "widgets", f.Collection)
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), f.From)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), f.To)
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s := newTestServer(t, &fakeStore{}, cfg)

	rec, env := do(t, s, http.MethodGet, "/api/collections", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_MISSING_KEY", env.Code)

	rec, _ = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, MutationLimit: 1, Burst: 1}
	s := newTestServer(t, &fakeStore{}, cfg)

	rec, _ := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testConfig())

	rec, env := do(t, s, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestRateLimiterSweep(t *testing.T) {
	rl := newRateLimiter(60, 1)
	defer rl.stop()

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	rl.sweep(time.Now().Add(visitorTTL + time.Second))
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()

	assert.Equal(t, "2", rl.retryAfter())
}
