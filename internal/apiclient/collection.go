package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/ev2/internal/collection"
)

// Collection is the API of one collection. It implements collection.API.
type Collection struct {
	client *Client
	key    string
}

var _ collection.API = (*Collection)(nil)

// Key returns the collection key used in request paths.
func (c *Collection) Key() string { return c.key }

func (c *Collection) path(action string) string {
	p := "/api/" + url.PathEscape(c.key)
	if action != "" {
		p += "/" + action
	}
	return p
}

// List fetches one page.
func (c *Collection) List(ctx context.Context, q collection.Query) (*collection.Page, error) {
	data, err := c.client.do(ctx, request{
		op:     "list",
		method: http.MethodGet,
		path:   c.path(""),
		query:  q.Values(),
	})
	if err != nil {
		return nil, err
	}
	if err := c.client.decode("list", data, c.client.schema.list); err != nil {
		return nil, err
	}

	page := &collection.Page{
		TotalItems: int(data.Get("totalItems").Int()),
		TotalPages: int(data.Get("totalPages").Int()),
	}
	for _, r := range data.Get("items").Array() {
		item, err := itemFrom(r)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// Create submits a new record.
func (c *Collection) Create(ctx context.Context, values map[string]any) (*collection.Item, error) {
	return c.itemCall(ctx, "create", values)
}

// UpdateField persists one field of one record. The body is {id, <field>: value}.
func (c *Collection) UpdateField(ctx context.Context, id collection.ID, field string, value any) (*collection.Item, error) {
	return c.itemCall(ctx, "update", map[string]any{
		"id":  string(id),
		field: value,
	})
}

func (c *Collection) itemCall(ctx context.Context, action string, body map[string]any) (*collection.Item, error) {
	data, err := c.client.do(ctx, request{
		op:     action,
		method: http.MethodPost,
		path:   c.path(action),
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	if err := c.client.decode(action, data, c.client.schema.item); err != nil {
		return nil, err
	}
	item, err := itemFrom(data.Get("item"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return &item, nil
}

type itemUpdate struct {
	ItemCode string         `json:"itemCode"`
	Changes  map[string]any `json:"changes"`
}

// UpdateItems submits all patches in one request.
func (c *Collection) UpdateItems(ctx context.Context, patches []collection.Patch) (*collection.BatchResult, error) {
	updates := make([]itemUpdate, 0, len(patches))
	for _, p := range patches {
		updates = append(updates, itemUpdate{ItemCode: string(p.ID), Changes: p.Changes})
	}
	return c.batchCall(ctx, "updateItems", "updatedItems", map[string]any{"updates": updates})
}

// DeleteItems deletes all ids in one request.
func (c *Collection) DeleteItems(ctx context.Context, ids []collection.ID) (*collection.BatchResult, error) {
	codes := make([]string, 0, len(ids))
	for _, id := range ids {
		codes = append(codes, string(id))
	}
	return c.batchCall(ctx, "deleteItems", "deletedItems", map[string]any{"itemCodes": codes})
}

func (c *Collection) batchCall(ctx context.Context, action, doneKey string, body any) (*collection.BatchResult, error) {
	data, err := c.client.do(ctx, request{
		op:     action,
		method: http.MethodPost,
		path:   c.path(action),
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	if err := c.client.decode(action, data, c.client.schema.batch); err != nil {
		return nil, err
	}

	res := &collection.BatchResult{TotalErrors: int(data.Get("totalErrors").Int())}
	for _, v := range data.Get(doneKey).Array() {
		if id, ok := collection.IDFrom(v.Value()); ok {
			res.Succeeded = append(res.Succeeded, id)
		}
	}
	for _, e := range data.Get("errorItems").Array() {
		if ie, ok := itemErrorFrom(e); ok {
			res.Failed = append(res.Failed, ie)
		}
	}
	if res.TotalErrors < len(res.Failed) {
		res.TotalErrors = len(res.Failed)
	}
	return res, nil
}

// itemErrorFrom reads one errorItems entry: a bare id, or an object with
// itemCode and optional message and code.
func itemErrorFrom(e gjson.Result) (collection.ItemError, bool) {
	if !e.IsObject() {
		id, ok := collection.IDFrom(e.Value())
		return collection.ItemError{ID: id}, ok
	}
	id, ok := collection.IDFrom(e.Get("itemCode").Value())
	if !ok {
		return collection.ItemError{}, false
	}
	return collection.ItemError{
		ID:      id,
		Message: e.Get("message").String(),
		Code:    e.Get("code").String(),
	}, true
}

// itemFrom converts a record object. The id member becomes Item.ID and is not
// part of Values.
func itemFrom(r gjson.Result) (collection.Item, error) {
	values, ok := r.Value().(map[string]any)
	if !ok {
		return collection.Item{}, fmt.Errorf("%w: record is not an object", ErrInvalidPayload)
	}
	id, ok := collection.IDFrom(values["id"])
	if !ok {
		return collection.Item{}, fmt.Errorf("%w: record has no usable id", ErrInvalidPayload)
	}
	delete(values, "id")
	return collection.Item{ID: id, Values: values}, nil
}
