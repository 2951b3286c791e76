// Package core provides the store behind the EV2 collection API.
//
// This package holds the domain logic for listing and editing admin
// collections, independent of any transport. It is used by the web handlers
// and can be driven from tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Collection Definitions: Registered via the registry, each collection has
//     a table, field specs, filterable fields and a name column that must stay
//     unique.
//   - Service: The main entry point for all operations (list, create, update,
//     batch update, batch delete, audit).
//   - Batch Limiter: Bounds concurrent batch mutations so one client cannot
//     hold every pool connection.
//   - Audit: A record of every mutation, pruned by a retention job.
//
// # Collection Registry
//
// Collections are registered at init time using [Register]:
//
//	core.Register(CollectionDefinition{
//	    Info: CollectionInfo{Key: "products", Group: "Catalog", Label: "Products", NameColumn: "name"},
//	    FieldSpecs: []FieldSpec{
//	        {Name: "name", Required: true, Type: FieldText},
//	        {Name: "price", Type: FieldPrice},
//	    },
//	})
//
// The collections subpackage registers the built-in set.
//
// # Listing
//
// [Service.ListItems] applies search over text fields, column filters, a
// whitelisted sort column and pagination in one query, and reports the total
// count alongside the page.
//
// # Error Handling
//
// Domain errors ([ErrNotFound], [ErrDuplicateName], [ErrProtected] and
// *ValidationError) carry envelope codes through [ApplicationCode]. Anything
// else is mapped to a user-friendly message by [MapError], with a support
// code per category:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL004: Validation errors
//   - COL001: Unknown collection
//   - BAT001-BAT002: Batch errors (size, concurrency)
//   - REQ001-REQ002: Cancelled or timed out requests
//
// # Audit Logging
//
// Mutations are recorded with a severity derived from the action. Batch
// updates and deletes are high, single updates medium, creates low. Entries
// older than the configured retention are deleted by
// [Service.StartAuditRetention].
package core
