package core

// batch_limiter.go bounds how many batch mutations (updateItems, deleteItems)
// run against the database at once. Each batch holds one slot for its whole
// duration; when every slot is taken, callers wait up to maxWait and then
// fail with ErrTooManyBatches. WaitForDrain lets shutdown wait for batches
// already running.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyBatches is returned when no slot frees up within the wait time.
var ErrTooManyBatches = errors.New("too many concurrent batch operations, please try again later")

const (
	DefaultMaxConcurrentBatches = 4
	DefaultBatchWaitTime        = 10 * time.Second
)

// BatchLimiter is a weighted semaphore with an observable active count.
type BatchLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// NewBatchLimiter allows at most maxConcurrent batches; non-positive
// arguments fall back to the defaults.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultBatchWaitTime
	}
	return &BatchLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The caller must Release it.
func (l *BatchLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyBatches
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot only if one is free right now.
func (l *BatchLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *BatchLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of batches holding a slot.
func (l *BatchLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Available returns the number of free slots.
func (l *BatchLimiter) Available() int {
	return int(l.max - l.active.Load())
}

// WaitForDrain blocks until every slot is free or ctx is done. New batches
// are held off while it waits.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.max); err != nil {
		return err
	}
	l.sem.Release(l.max)
	return nil
}

// BatchLimiterStatus is a snapshot for monitoring.
type BatchLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *BatchLimiter) Status() BatchLimiterStatus {
	return BatchLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: int(l.max),
	}
}
