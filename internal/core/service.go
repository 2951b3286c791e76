package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/ev2/internal/config"
)

// Timeout defaults used when the config leaves them unset.
const (
	DefaultQueryTimeout = 15 * time.Second
	DefaultBatchTimeout = 60 * time.Second
	DefaultMaxBatchSize = 500
)

// Service provides the collection store operations.
type Service struct {
	pool    *pgxpool.Pool
	cfg     *config.Config
	limiter *BatchLimiter
}

// NewService creates a new Service instance.
func NewService(pool *pgxpool.Pool, cfg *config.Config) (*Service, error) {
	return &Service{
		pool:    pool,
		cfg:     cfg,
		limiter: NewBatchLimiter(cfg.Batch.MaxConcurrent, cfg.Batch.MaxWaitTime),
	}, nil
}

// ListCollections returns the definitions of all registered collections.
func (s *Service) ListCollections() []CollectionDefinition {
	return All()
}

// Describe returns the definition of one collection.
func (s *Service) Describe(key string) (CollectionDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return CollectionDefinition{}, ErrUnknownCollection
	}
	return def, nil
}

// Ping checks database connectivity for health probes.
func (s *Service) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// BatchLimiterStatus reports the batch limiter state.
func (s *Service) BatchLimiterStatus() BatchLimiterStatus {
	return s.limiter.Status()
}

// WaitForBatches blocks until running batch mutations finish.
func (s *Service) WaitForBatches(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) queryTimeout() time.Duration {
	if s.cfg.Batch.QueryTimeout > 0 {
		return s.cfg.Batch.QueryTimeout
	}
	return DefaultQueryTimeout
}

func (s *Service) batchTimeout() time.Duration {
	if s.cfg.Batch.Timeout > 0 {
		return s.cfg.Batch.Timeout
	}
	return DefaultBatchTimeout
}

func (s *Service) maxBatchSize() int {
	if s.cfg.Batch.MaxItems > 0 {
		return s.cfg.Batch.MaxItems
	}
	return DefaultMaxBatchSize
}

// logAudit records an audit entry and only logs failures; the mutation it
// describes has already committed.
func (s *Service) logAudit(ctx context.Context, params AuditLogParams) {
	info := RequestInfoFrom(ctx)
	params.IPAddress = info.IPAddress
	params.UserAgent = info.UserAgent
	if _, err := s.LogAudit(ctx, params); err != nil {
		slog.Warn("audit log write failed",
			"action", params.Action,
			"collection", params.Collection,
			"error", err,
		)
	}
}
