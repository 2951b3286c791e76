package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// CreateItem validates values and inserts a new item.
func (s *Service) CreateItem(ctx context.Context, key string, values map[string]any) (Item, error) {
	def, ok := Get(key)
	if !ok {
		return nil, ErrUnknownCollection
	}

	cols, err := validatePayload(def, values, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	var item Item
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkNameFree(ctx, tx, def, cols, ""); err != nil {
			return err
		}

		names, args := sortedColumns(cols)
		placeholders := make([]string, len(names))
		for i := range names {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		query := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			quoteIdentifier(def.Info.Key),
			strings.Join(quoteColumns(names), ", "),
			strings.Join(placeholders, ", "),
			strings.Join(quoteColumns(def.columns()), ", "),
		)
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		items, err := collectItems(def, rows)
		if err != nil {
			return err
		}
		item = items[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, AuditLogParams{
		Action:       ActionCreate,
		Collection:   key,
		ItemID:       fmt.Sprint(item["id"]),
		NewValues:    values,
		RowsAffected: 1,
	})
	return item, nil
}

// UpdateItem applies changes to one item and returns the stored result.
func (s *Service) UpdateItem(ctx context.Context, key string, id any, changes map[string]any) (Item, error) {
	def, ok := Get(key)
	if !ok {
		return nil, ErrUnknownCollection
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	var item Item
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		item, err = updateItem(ctx, tx, def, id, changes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, AuditLogParams{
		Action:       ActionUpdate,
		Collection:   key,
		ItemID:       fmt.Sprint(item["id"]),
		NewValues:    changes,
		RowsAffected: 1,
	})
	return item, nil
}

// UpdateItems applies each update in its own transaction. A failing item
// does not affect the others; failures are tallied in the result.
func (s *Service) UpdateItems(ctx context.Context, key string, updates []ItemUpdate) (*BatchResult, error) {
	def, ok := Get(key)
	if !ok {
		return nil, ErrUnknownCollection
	}
	if len(updates) > s.maxBatchSize() {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(updates), s.maxBatchSize())
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout())
	defer cancel()

	result := &BatchResult{Succeeded: []any{}, ErrorItems: []ItemError{}}
	for _, u := range updates {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			_, err := updateItem(ctx, tx, def, u.ItemCode, u.Changes)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.fail(u.ItemCode, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, u.ItemCode)
	}

	if len(result.Succeeded) > 0 {
		s.logAudit(ctx, AuditLogParams{
			Action:       ActionBulkUpdate,
			Collection:   key,
			RowsAffected: len(result.Succeeded),
			Reason:       fmt.Sprintf("updated %d of %d items", len(result.Succeeded), len(updates)),
		})
	}
	return result, nil
}

// DeleteItems deletes each item in its own transaction. Protected and
// missing items are reported per item.
func (s *Service) DeleteItems(ctx context.Context, key string, ids []any) (*BatchResult, error) {
	def, ok := Get(key)
	if !ok {
		return nil, ErrUnknownCollection
	}
	if len(ids) > s.maxBatchSize() {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(ids), s.maxBatchSize())
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout())
	defer cancel()

	result := &BatchResult{Succeeded: []any{}, ErrorItems: []ItemError{}}
	for _, id := range ids {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return deleteItem(ctx, tx, def, id)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.fail(id, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	if len(result.Succeeded) > 0 {
		s.logAudit(ctx, AuditLogParams{
			Action:       ActionDelete,
			Collection:   key,
			RowsAffected: len(result.Succeeded),
			Reason:       fmt.Sprintf("deleted %d of %d items", len(result.Succeeded), len(ids)),
		})
	}
	return result, nil
}

// updateItem validates changes, locks the row and writes it inside tx.
func updateItem(ctx context.Context, tx DBTX, def CollectionDefinition, id any, changes map[string]any) (Item, error) {
	if len(changes) == 0 {
		return nil, ErrNoChanges
	}
	idText, err := idString(id)
	if err != nil {
		return nil, err
	}
	cols, err := validatePayload(def, changes, true)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, ErrNoChanges
	}

	if err := lockItem(ctx, tx, def, idText); err != nil {
		return nil, err
	}
	if err := checkNameFree(ctx, tx, def, cols, idText); err != nil {
		return nil, err
	}

	names, args := sortedColumns(cols)
	sets := make([]string, len(names))
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(name), i+1)
	}
	args = append(args, idText)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		quoteIdentifier(def.Info.Key),
		strings.Join(sets, ", "),
		quoteIdentifier(def.Info.IDColumn),
		len(args),
		strings.Join(quoteColumns(def.columns()), ", "),
	)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	items, err := collectItems(def, rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

func deleteItem(ctx context.Context, tx DBTX, def CollectionDefinition, id any) error {
	idText, err := idString(id)
	if err != nil {
		return err
	}
	if err := lockItem(ctx, tx, def, idText); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1",
		quoteIdentifier(def.Info.Key),
		quoteIdentifier(def.Info.IDColumn),
	)
	if _, err := tx.Exec(ctx, query, idText); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// lockItem takes a row lock and refuses missing or protected items.
func lockItem(ctx context.Context, tx DBTX, def CollectionDefinition, idText string) error {
	protectedExpr := "false"
	if def.Info.ProtectedColumn != "" {
		protectedExpr = "COALESCE(" + quoteIdentifier(def.Info.ProtectedColumn) + ", false)"
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1 FOR UPDATE",
		protectedExpr,
		quoteIdentifier(def.Info.Key),
		quoteIdentifier(def.Info.IDColumn),
	)
	var protected bool
	if err := tx.QueryRow(ctx, query, idText).Scan(&protected); err != nil {
		return notFound(err)
	}
	if protected {
		return ErrProtected
	}
	return nil
}

// checkNameFree rejects a name already used by another item, compared
// case-insensitively. excludeID is empty on create.
func checkNameFree(ctx context.Context, tx DBTX, def CollectionDefinition, cols map[string]any, excludeID string) error {
	if def.Info.NameColumn == "" {
		return nil
	}
	nameCol := resolveDBColumn(def.Info.NameColumn, def.FieldSpecs)
	value, ok := cols[nameCol]
	if !ok || value == nil {
		return nil
	}

	query := fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM %s WHERE lower(%s) = lower($1) AND %s::text <> $2)",
		quoteIdentifier(def.Info.Key),
		quoteIdentifier(nameCol),
		quoteIdentifier(def.Info.IDColumn),
	)
	var exists bool
	if err := tx.QueryRow(ctx, query, value, excludeID).Scan(&exists); err != nil {
		return fmt.Errorf("duplicate check failed: %w", err)
	}
	if exists {
		return ErrDuplicateName
	}
	return nil
}

// sortedColumns flattens cols into parallel name and value slices in a
// deterministic order.
func sortedColumns(cols map[string]any) ([]string, []any) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = cols[name]
	}
	return names, args
}
