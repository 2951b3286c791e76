package web

// handlers_mutations.go contains the create, update and batch mutation handlers.

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ev2/internal/core"
	"github.com/JonMunkholm/ev2/internal/logging"
)

// handleCreate inserts one item from a {field: value} body.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "collection")

	var values map[string]any
	if err := decodeJSON(r, &values); err != nil {
		s.respondError(w, r, err)
		return
	}
	delete(values, "id")

	ctx := WithRequestMetadata(r.Context(), r)
	item, err := s.store.CreateItem(ctx, key, values)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Item created", map[string]any{"item": item})
}

// handleUpdate changes fields of one item. The body is {id, <field>: value}.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "collection")

	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	id, ok := body["id"]
	if !ok || id == nil {
		s.respondError(w, r, &core.ValidationError{Field: "id", Message: "is required"})
		return
	}
	delete(body, "id")

	ctx := WithRequestMetadata(r.Context(), r)
	item, err := s.store.UpdateItem(ctx, key, id, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Item updated", map[string]any{"item": item})
}

// handleUpdateItems applies per-item changes. Items fail independently.
func (s *Server) handleUpdateItems(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "collection")

	var req struct {
		Updates []core.ItemUpdate `json:"updates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.store.UpdateItems(ctx, key, req.Updates)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(),
		"collection", key,
		"updated", len(result.Succeeded),
		"errors", result.TotalErrors,
	).Info("batch update finished")

	writeSuccess(w, http.StatusOK, batchMessage("updated", result), batchData("updatedItems", "totalUpdated", result))
}

// handleDeleteItems deletes items by id. Items fail independently.
func (s *Server) handleDeleteItems(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "collection")

	var req struct {
		ItemCodes []any `json:"itemCodes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.store.DeleteItems(ctx, key, req.ItemCodes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(),
		"collection", key,
		"deleted", len(result.Succeeded),
		"errors", result.TotalErrors,
	).Info("batch delete finished")

	writeSuccess(w, http.StatusOK, batchMessage("deleted", result), batchData("deletedItems", "totalDeleted", result))
}

// batchData shapes a batch result as {<doneKey>, errorItems, totalErrors}.
func batchData(doneKey, totalKey string, result *core.BatchResult) map[string]any {
	done := result.Succeeded
	if done == nil {
		done = []any{}
	}
	failed := result.ErrorItems
	if failed == nil {
		failed = []core.ItemError{}
	}
	return map[string]any{
		doneKey:       done,
		totalKey:      len(done),
		"errorItems":  failed,
		"totalErrors": result.TotalErrors,
	}
}

func batchMessage(verb string, result *core.BatchResult) string {
	n := len(result.Succeeded)
	noun := "items"
	if n == 1 {
		noun = "item"
	}
	msg := fmt.Sprintf("%d %s %s", n, noun, verb)
	if result.TotalErrors > 0 {
		msg += fmt.Sprintf(", %d failed", result.TotalErrors)
	}
	return msg
}
