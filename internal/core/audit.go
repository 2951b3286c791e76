package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// AuditAction represents the type of mutation being audited.
type AuditAction string

const (
	ActionCreate     AuditAction = "create"
	ActionUpdate     AuditAction = "update"
	ActionBulkUpdate AuditAction = "bulk_update"
	ActionDelete     AuditAction = "delete"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// DefaultAuditLimit caps audit listings when no limit is given.
const DefaultAuditLimit = 100

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string         `json:"id"`
	Action       AuditAction    `json:"action"`
	Severity     AuditSeverity  `json:"severity"`
	Collection   string         `json:"collection"`
	ItemID       string         `json:"itemId,omitempty"`
	NewValues    map[string]any `json:"newValues,omitempty"`
	RowsAffected int            `json:"rowsAffected,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action       AuditAction
	Collection   string
	ItemID       string
	NewValues    map[string]any
	RowsAffected int
	IPAddress    string
	UserAgent    string
	Reason       string
}

func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionBulkUpdate, ActionDelete:
		return SeverityHigh
	case ActionCreate:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

const auditColumns = "id, action, severity, collection, item_id, new_values, rows_affected, ip_address, user_agent, reason, created_at"

// LogAudit creates a new audit log entry.
func (s *Service) LogAudit(ctx context.Context, params AuditLogParams) (*AuditEntry, error) {
	var newValues []byte
	if params.NewValues != nil {
		var err error
		newValues, err = json.Marshal(params.NewValues)
		if err != nil {
			newValues = nil
		}
	}

	rows, err := s.pool.Query(ctx,
		`INSERT INTO audit_log (id, action, severity, collection, item_id, new_values, rows_affected, ip_address, user_agent, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+auditColumns,
		uuid.New(),
		string(params.Action),
		string(determineSeverity(params.Action)),
		params.Collection,
		ToPgText(params.ItemID),
		newValues,
		params.RowsAffected,
		ToPgText(params.IPAddress),
		ToPgText(params.UserAgent),
		ToPgText(params.Reason),
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit log: %w", err)
	}
	entry, err := pgx.CollectExactlyOneRow(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("insert audit log: %w", err)
	}
	return &entry, nil
}

// ListAudit returns audit entries newest first.
func (s *Service) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > DefaultAuditLimit*10 {
		limit = DefaultAuditLimit
	}

	wb := NewWhereBuilder()
	wb.Add("collection", filter.Collection)
	wb.AddTimestampRange("created_at", filter.From, filter.To)
	whereClause, args := wb.Build()

	query := fmt.Sprintf(
		"SELECT %s FROM audit_log%s ORDER BY created_at DESC LIMIT $%d",
		auditColumns, whereClause, wb.NextArgIndex(),
	)
	args = append(args, limit)

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return entries, nil
}

// PruneAudit deletes up to batchSize entries created before cutoff and
// returns how many were removed.
func (s *Service) PruneAudit(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM audit_log WHERE id IN (
			SELECT id FROM audit_log WHERE created_at < $1 ORDER BY created_at LIMIT $2
		)`,
		cutoff, batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAuditEntry(row pgx.CollectableRow) (AuditEntry, error) {
	var (
		entry     AuditEntry
		id        pgtype.UUID
		action    string
		severity  string
		itemID    pgtype.Text
		newValues []byte
		affected  pgtype.Int4
		ip        pgtype.Text
		ua        pgtype.Text
		reason    pgtype.Text
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &action, &severity, &entry.Collection, &itemID, &newValues,
		&affected, &ip, &ua, &reason, &createdAt); err != nil {
		return AuditEntry{}, err
	}

	if id.Valid {
		entry.ID = uuid.UUID(id.Bytes).String()
	}
	entry.Action = AuditAction(action)
	entry.Severity = AuditSeverity(severity)
	entry.ItemID = itemID.String
	if newValues != nil {
		_ = json.Unmarshal(newValues, &entry.NewValues)
	}
	if affected.Valid {
		entry.RowsAffected = int(affected.Int32)
	}
	entry.IPAddress = ip.String
	entry.UserAgent = ua.String
	entry.Reason = reason.String
	entry.CreatedAt = createdAt.Time
	return entry, nil
}

type requestInfoKey struct{}

// RequestInfo identifies the client behind a mutation for the audit log.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

// WithRequestInfo attaches client details to ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the client details attached to ctx, if any.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
