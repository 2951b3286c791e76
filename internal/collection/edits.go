package collection

import (
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/ev2/internal/eventloop"
	"k8s.io/utils/clock"
)

type editKey struct {
	row   ID
	field string
}

type pendingEdit struct {
	timer clock.Timer
	value any
	gen   uint64
}

// Editor debounces per-field edits and commits each field on its own once
// the user pauses. Only the newest value for a (row, field) is ever sent.
type Editor struct {
	c       *Collection
	pending map[editKey]*pendingEdit
	gen     uint64

	// seq is the newest commit per key; older successes must not overwrite
	// the original snapshot.
	seq map[editKey]uint64
}

func newEditor(c *Collection) *Editor {
	return &Editor{
		c:       c,
		pending: make(map[editKey]*pendingEdit),
		seq:     make(map[editKey]uint64),
	}
}

// Schedule validates raw input for a field, stores the normalized value on
// the row immediately and (re)starts the field's commit timer.
//
// Invalid input returns a *ValidationError and is recorded on the row for
// display. It leaves the stored value untouched. A required field left empty
// also drops the field's pending commit, so the value the user cleared is
// never sent.
// Edits to rows that were never saved are kept locally; they are persisted by
// Bulk.CreateMany.
func (e *Editor) Schedule(id ID, field, raw string) error {
	c := e.c
	row := c.index[id]
	if row == nil {
		return fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	f, ok := c.opts.Schema.Field(field)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if f.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnlyField, field)
	}

	value, err := f.Normalize(raw, c.opts.Precision)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			row.setDisplay(field, raw)
			row.setFieldError(field, ve.Message)
			if ve.Reason == ReasonRequired {
				e.cancel(editKey{row: id, field: field})
			}
			c.changed()
		}
		return err
	}

	row.clearField(field)
	row.Values[field] = value
	c.changed()

	if row.IsNew() {
		return nil
	}

	delay := c.opts.ChoiceDelay
	if f.debounced() {
		delay = c.opts.TextDelay
	}
	e.arm(editKey{row: id, field: field}, value, delay)
	return nil
}

func (e *Editor) arm(key editKey, value any, delay time.Duration) {
	if p := e.pending[key]; p != nil {
		p.timer.Stop()
	}
	e.gen++
	gen := e.gen
	p := &pendingEdit{value: value, gen: gen}
	p.timer = e.c.loop.AfterFunc(delay, func() {
		cur := e.pending[key]
		if cur == nil || cur.gen != gen {
			return
		}
		delete(e.pending, key)
		e.commit(key, value)
	})
	e.pending[key] = p
}

func (e *Editor) cancel(key editKey) {
	if p := e.pending[key]; p != nil {
		p.timer.Stop()
		delete(e.pending, key)
	}
}

// IsPending reports whether a commit is scheduled for the field.
func (e *Editor) IsPending(id ID, field string) bool {
	_, ok := e.pending[editKey{row: id, field: field}]
	return ok
}

// PendingCount returns the number of scheduled commits.
func (e *Editor) PendingCount() int {
	return len(e.pending)
}

// CancelRow drops every scheduled commit for the row.
func (e *Editor) CancelRow(id ID) {
	for key, p := range e.pending {
		if key.row == id {
			p.timer.Stop()
			delete(e.pending, key)
		}
	}
}

// CancelAll drops every scheduled commit.
func (e *Editor) CancelAll() {
	for key, p := range e.pending {
		p.timer.Stop()
		delete(e.pending, key)
	}
}

// Flush commits every scheduled edit now. The returned future resolves once
// all commits have completed, with the first error.
func (e *Editor) Flush() *eventloop.Future[struct{}] {
	var fs []*eventloop.Future[struct{}]
	for key, p := range e.pending {
		p.timer.Stop()
		delete(e.pending, key)
		fs = append(fs, e.commit(key, p.value))
	}
	return eventloop.All(fs...)
}

func (e *Editor) commit(key editKey, value any) *eventloop.Future[struct{}] {
	c := e.c
	f := eventloop.NewFuture[struct{}]()
	if err := c.authorized(); err != nil {
		f.Resolve(struct{}{}, err)
		return f
	}

	e.seq[key]++
	seq := e.seq[key]
	ctx := c.ctx
	c.log.Debug("committing field", "id", key.row, "field", key.field)

	go func() {
		_, err := c.api.UpdateField(ctx, key.row, key.field, value)
		c.loop.Post(func() {
			e.applyCommit(key, seq, value, err, f)
		})
	}()
	return f
}

func (e *Editor) applyCommit(key editKey, seq uint64, value any, err error, f *eventloop.Future[struct{}]) {
	c := e.c
	if c.ctx.Err() != nil {
		f.Resolve(struct{}{}, ErrClosed)
		return
	}

	if err != nil {
		var fieldErr, msg string
		var ae *ApplicationError
		if errors.As(err, &ae) && ae.Field != "" {
			fieldErr, msg = ae.Field, c.messageFor(ae)
			if row := c.index[key.row]; row != nil {
				row.setFieldError(fieldErr, msg)
			}
		}
		c.report(err)
		// The server value wins; refetch instead of rolling back locally.
		// The refetched row is rebuilt, so the field error is set again.
		c.Refresh().OnResolve(func(Result, error) {
			if row := c.index[key.row]; row != nil && fieldErr != "" {
				row.setFieldError(fieldErr, msg)
				c.changed()
			}
			f.Resolve(struct{}{}, err)
		})
		return
	}

	if e.seq[key] == seq {
		if row := c.index[key.row]; row != nil && row.Original != nil {
			row.Original[key.field] = value
			c.changed()
		}
	}
	f.Resolve(struct{}{}, nil)
}
