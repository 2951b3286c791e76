package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// FieldType represents the stored data type of a collection field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldPrice
	FieldBool
	FieldRef // Identifier of an item in another collection
)

// Kind returns the name clients use for the field type.
func (t FieldType) Kind() string {
	switch t {
	case FieldEnum:
		return "choice"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "number"
	case FieldPrice:
		return "price"
	case FieldBool:
		return "bool"
	default:
		return "text"
	}
}

// FieldSpec defines one editable column of a collection.
type FieldSpec struct {
	Name       string              // JSON name used on the wire
	Label      string              // Display label
	DBColumn   string              // Database column name (derived from Name when empty)
	Type       FieldType           // Stored data type
	Required   bool                // Value may not be blank
	ReadOnly   bool                // Rejected in create and update payloads
	EnumValues []string            // Valid values for FieldEnum
	Normalizer func(string) string // Optional transformation applied to text input
}

// CollectionInfo contains display and storage information about a collection.
type CollectionInfo struct {
	Key             string   // Unique identifier and table name: "products"
	Group           string   // Navigation group: "Catalog", "Pricing", "Access"
	Label           string   // Display name: "Products"
	IDColumn        string   // Primary key column (default "id")
	NameColumn      string   // Column that must be unique, empty if none
	ProtectedColumn string   // Boolean column marking records that may not change
	Filters         []string // Field names accepted as equality filters
}

// CollectionDefinition contains everything needed to serve a collection.
type CollectionDefinition struct {
	Info       CollectionInfo
	FieldSpecs []FieldSpec
}

// Field looks up a field spec by its wire name.
func (d CollectionDefinition) Field(name string) (FieldSpec, bool) {
	for _, spec := range d.FieldSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// columns returns the id column followed by every field column.
func (d CollectionDefinition) columns() []string {
	cols := make([]string, 0, len(d.FieldSpecs)+1)
	cols = append(cols, d.Info.IDColumn)
	for _, spec := range d.FieldSpecs {
		cols = append(cols, resolveDBColumn(spec.Name, d.FieldSpecs))
	}
	return cols
}

// FilterOperator represents a comparison operator for column filters.
type FilterOperator string

const (
	OpContains   FilterOperator = "contains"
	OpEquals     FilterOperator = "eq"
	OpStartsWith FilterOperator = "starts"
	OpEndsWith   FilterOperator = "ends"
	OpGreaterEq  FilterOperator = "gte"
	OpLessEq     FilterOperator = "lte"
	OpGreater    FilterOperator = "gt"
	OpLess       FilterOperator = "lt"
	OpIn         FilterOperator = "in"
)

// ColumnFilter represents a single filter condition on a column.
type ColumnFilter struct {
	Column   string         // Field name
	DBColumn string         // Database column name
	Operator FilterOperator // Comparison operator
	Value    string         // Filter value (comma-separated for OpIn)
	Type     FieldType      // Column type for proper SQL generation
}

// FilterSet represents all active filters (combined with AND logic).
type FilterSet struct {
	Filters []ColumnFilter
}

// SortSpec represents a single sort column and direction.
type SortSpec struct {
	Column string // Field name
	Dir    string // "asc" or "desc"
}

// Item is one record keyed by field name, plus "id".
type Item map[string]any

// ListParams selects one page of a collection.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	Sort     SortSpec
	Filters  FilterSet
}

// ListResult is one page of items with the totals for the whole query.
type ListResult struct {
	Items      []Item `json:"items"`
	TotalItems int64  `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
	Page       int    `json:"page"`
}

// ItemUpdate carries the changed fields of one item in a batch update.
type ItemUpdate struct {
	ItemCode any            `json:"itemCode"`
	Changes  map[string]any `json:"changes"`
}

// ItemError describes why one item of a batch was rejected.
type ItemError struct {
	ItemCode any    `json:"itemCode"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// BatchResult is the per-item tally of a batch update or delete.
type BatchResult struct {
	Succeeded   []any       `json:"-"`
	ErrorItems  []ItemError `json:"errorItems"`
	TotalErrors int         `json:"totalErrors"`
}

func (r *BatchResult) fail(code any, err error) {
	r.ErrorItems = append(r.ErrorItems, ItemError{
		ItemCode: code,
		Message:  userMessage(err),
		Code:     ApplicationCode(err),
	})
	r.TotalErrors++
}

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	Collection string
	From       time.Time
	To         time.Time
	Limit      int
}
