package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/ev2/internal/collection"
)

// FieldInfo describes one column as advertised by the server.
type FieldInfo struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	ReadOnly bool     `json:"readOnly"`
	Options  []string `json:"options"`
}

// CollectionInfo describes one collection as advertised by the server.
type CollectionInfo struct {
	Key     string      `json:"key"`
	Label   string      `json:"label"`
	Group   string      `json:"group"`
	Filters []string    `json:"filters"`
	Fields  []FieldInfo `json:"fields"`
}

// Schema converts the advertised description to a collection schema.
func (ci CollectionInfo) Schema() collection.Schema {
	s := collection.Schema{Name: ci.Key, Filters: ci.Filters}
	for _, f := range ci.Fields {
		kind, _ := collection.ParseKind(f.Kind)
		s.Fields = append(s.Fields, collection.Field{
			Name:     f.Name,
			Label:    f.Label,
			Kind:     kind,
			Required: f.Required,
			ReadOnly: f.ReadOnly,
			Options:  f.Options,
		})
	}
	return s
}

// Collections lists the collections the server exposes.
func (c *Client) Collections(ctx context.Context) ([]CollectionInfo, error) {
	data, err := c.do(ctx, request{
		op:     "collections",
		method: http.MethodGet,
		path:   "/api/collections",
	})
	if err != nil {
		return nil, err
	}
	if err := c.decode("collections", data, c.schema.collections); err != nil {
		return nil, err
	}

	var out struct {
		Collections []CollectionInfo `json:"collections"`
	}
	if err := json.Unmarshal([]byte(data.Raw), &out); err != nil {
		return nil, fmt.Errorf("collections: %w: %v", ErrInvalidPayload, err)
	}
	return out.Collections, nil
}

// Describe returns the description of one collection.
func (c *Client) Describe(ctx context.Context, key string) (CollectionInfo, error) {
	all, err := c.Collections(ctx)
	if err != nil {
		return CollectionInfo{}, err
	}
	for _, ci := range all {
		if ci.Key == key {
			return ci, nil
		}
	}
	return CollectionInfo{}, fmt.Errorf("unknown collection %q", key)
}
