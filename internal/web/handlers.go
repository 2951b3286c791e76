package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ev2/internal/core"
)

// FieldInfo describes one field to clients.
type FieldInfo struct {
	Name     string   `json:"name"`
	Label    string   `json:"label,omitempty"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	ReadOnly bool     `json:"readOnly"`
	Options  []string `json:"options,omitempty"`
}

// CollectionInfo describes one collection to clients.
type CollectionInfo struct {
	Key     string      `json:"key"`
	Label   string      `json:"label"`
	Group   string      `json:"group"`
	Filters []string    `json:"filters"`
	Fields  []FieldInfo `json:"fields"`
}

func describeCollection(def core.CollectionDefinition) CollectionInfo {
	info := CollectionInfo{
		Key:     def.Info.Key,
		Label:   def.Info.Label,
		Group:   def.Info.Group,
		Filters: def.Info.Filters,
		Fields:  make([]FieldInfo, 0, len(def.FieldSpecs)),
	}
	if info.Filters == nil {
		info.Filters = []string{}
	}
	for _, spec := range def.FieldSpecs {
		info.Fields = append(info.Fields, FieldInfo{
			Name:     spec.Name,
			Label:    spec.Label,
			Kind:     spec.Type.Kind(),
			Required: spec.Required,
			ReadOnly: spec.ReadOnly,
			Options:  spec.EnumValues,
		})
	}
	return info
}

// handleListCollections returns every registered collection with its fields.
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	defs := s.store.ListCollections()
	out := make([]CollectionInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, describeCollection(def))
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"collections": out})
}

// handleListItems returns one page of a collection.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "collection")
	def, err := s.store.Describe(key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.store.ListItems(r.Context(), key, parseListParams(r, def))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"items":      result.Items,
		"totalItems": result.TotalItems,
		"totalPages": result.TotalPages,
		"page":       result.Page,
		"pagination": map[string]any{
			"totalItems": result.TotalItems,
			"totalPages": result.TotalPages,
		},
	})
}

// handleListAudit returns recent audit entries, newest first.
//
// Query parameters: collection, from, to (RFC 3339 or YYYY-MM-DD), limit.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	filter := core.AuditFilter{
		Collection: strings.TrimSpace(r.URL.Query().Get("collection")),
		From:       parseTimeParam(r, "from"),
		To:         parseTimeParam(r, "to"),
		Limit:      parseIntParam(r, "limit", core.DefaultAuditLimit),
	}

	entries, err := s.store.ListAudit(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"entries": entries})
}
