package collection

import (
	"context"
	"fmt"
)

// Item is a record as exchanged with the server.
type Item struct {
	ID     ID
	Values map[string]any
}

// Page is one page of a list response.
type Page struct {
	Items      []Item
	TotalItems int
	TotalPages int
}

// Patch carries the changed fields of one row.
type Patch struct {
	ID      ID
	Changes map[string]any
}

// ItemError describes why one item of a batch was rejected.
type ItemError struct {
	ID      ID
	Message string
	Code    string
}

// BatchResult is the per-item outcome of a batched update or delete.
type BatchResult struct {
	Succeeded   []ID
	Failed      []ItemError
	TotalErrors int
}

// API is the server collaborator for one collection. Implementations return
// *NetworkError for transport failures and *ApplicationError when the server
// answered with success=false.
type API interface {
	List(ctx context.Context, q Query) (*Page, error)
	Create(ctx context.Context, values map[string]any) (*Item, error)
	UpdateField(ctx context.Context, id ID, field string, value any) (*Item, error)
	UpdateItems(ctx context.Context, patches []Patch) (*BatchResult, error)
	DeleteItems(ctx context.Context, ids []ID) (*BatchResult, error)
}

// Notifier shows transient messages to the user.
type Notifier interface {
	ShowSuccess(msg string)
	ShowError(msg string)
	ShowWarning(msg string)
	ShowInfo(msg string)
}

// Translator resolves message keys. Unknown keys are returned unchanged.
type Translator interface {
	T(key string, args ...any) string
}

// Session reports whether requests may be issued.
type Session interface {
	IsAuthenticated() bool
}

// Message keys passed to the Translator.
const (
	MsgNetworkError    = "error.network"
	MsgCodePrefix      = "error.code."
	MsgCreateSucceeded = "bulk.create.succeeded"
	MsgCreatePartial   = "bulk.create.partial"
	MsgCreateFailed    = "bulk.create.failed"
	MsgUpdateSucceeded = "bulk.update.succeeded"
	MsgUpdatePartial   = "bulk.update.partial"
	MsgUpdateFailed    = "bulk.update.failed"
	MsgNothingToUpdate = "bulk.update.nothing"
	MsgDeleteSucceeded = "bulk.delete.succeeded"
	MsgDeletePartial   = "bulk.delete.partial"
	MsgDeleteFailed    = "bulk.delete.failed"
)

type nopNotifier struct{}

func (nopNotifier) ShowSuccess(string) {}
func (nopNotifier) ShowError(string)   {}
func (nopNotifier) ShowWarning(string) {}
func (nopNotifier) ShowInfo(string)    {}

type keyTranslator struct{}

func (keyTranslator) T(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return key + " " + fmt.Sprint(args...)
}
