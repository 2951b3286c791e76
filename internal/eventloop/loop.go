// Package eventloop provides the single-goroutine command queue that owns all
// collection controller state.
//
// Every mutation is a func posted to the Loop. Network calls run on their own
// goroutines and post their results back; timers post their callbacks. Because
// only the goroutine draining the queue ever touches controller state, no
// locking is needed above this package.
package eventloop

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Loop is an unbounded FIFO of commands drained by one goroutine at a time.
type Loop struct {
	clock clock.WithDelayedExecution

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// New creates a loop whose timers use clk. Pass clock.RealClock{} in
// production and a fake clock in tests.
func New(clk clock.WithDelayedExecution) *Loop {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Loop{
		clock: clk,
		wake:  make(chan struct{}, 1),
	}
}

// Clock returns the clock the loop arms timers with.
func (l *Loop) Clock() clock.WithDelayedExecution {
	return l.clock
}

// Post enqueues fn. It never blocks and is safe from any goroutine,
// including timer callbacks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending runs queued commands on the calling goroutine until the queue
// is empty, including commands enqueued while running. It returns the number
// of commands executed.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Run drains the queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// AfterFunc arms a timer that posts fn to the loop after d. Stopping the
// returned timer before it fires guarantees fn is never posted.
func (l *Loop) AfterFunc(d time.Duration, fn func()) clock.Timer {
	return l.clock.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Debouncer restarts a single timer on every Trigger; only the last trigger
// within the delay runs. It must be used from the loop goroutine.
type Debouncer struct {
	loop  *Loop
	delay time.Duration
	timer clock.Timer
	gen   uint64
}

// NewDebouncer creates a debouncer posting to l.
func NewDebouncer(l *Loop, delay time.Duration) *Debouncer {
	return &Debouncer{loop: l, delay: delay}
}

// Trigger cancels any pending run and schedules fn after the delay.
func (d *Debouncer) Trigger(fn func()) {
	d.Stop()
	d.gen++
	gen := d.gen
	d.timer = d.loop.AfterFunc(d.delay, func() {
		// A callback already posted when Stop ran must not run.
		if gen != d.gen {
			return
		}
		d.timer = nil
		fn()
	})
}

// Stop cancels the pending run, if any.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	return d.timer != nil
}
