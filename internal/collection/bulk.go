package collection

import (
	"errors"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/ev2/internal/eventloop"
)

// maxConcurrentCreates bounds the number of create requests in flight.
const maxConcurrentCreates = 4

// Action is a kind of bulk operation.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// State is the lifecycle of one bulk action.
type State int

const (
	Idle State = iota
	Submitting
	Succeeded
	PartiallySucceeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case PartiallySucceeded:
		return "partially_succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome reports the result of a bulk action. Per-item failures are listed
// in Failures; Err is set when the request as a whole failed.
type Outcome struct {
	Action    Action
	State     State
	Succeeded int
	Failed    int
	Local     int // rows handled without a server call
	Failures  map[ID]error
	Err       error
}

func (o *Outcome) fail(id ID, err error) {
	if o.Failures == nil {
		o.Failures = make(map[ID]error)
	}
	o.Failures[id] = err
	o.Failed++
}

func (o *Outcome) settle() {
	switch {
	case o.Failed == 0 && o.Err == nil:
		o.State = Succeeded
	case o.Succeeded > 0 || o.Local > 0:
		o.State = PartiallySucceeded
	default:
		o.State = Failed
	}
}

// Bulk coordinates create, update and delete of many rows and reports
// aggregate outcomes.
type Bulk struct {
	c     *Collection
	state map[Action]State
	last  map[Action]Outcome
}

func newBulk(c *Collection) *Bulk {
	return &Bulk{
		c:     c,
		state: make(map[Action]State),
		last:  make(map[Action]Outcome),
	}
}

// State returns the current state of action a.
func (b *Bulk) State(a Action) State {
	return b.state[a]
}

// LastOutcome returns the most recent outcome of action a.
func (b *Bulk) LastOutcome(a Action) (Outcome, bool) {
	o, ok := b.last[a]
	return o, ok
}

func (b *Bulk) begin(a Action) error {
	if b.state[a] == Submitting {
		return ErrBusy
	}
	if err := b.c.authorized(); err != nil {
		return err
	}
	b.state[a] = Submitting
	b.c.changed()
	return nil
}

// finish publishes the outcome to listeners, then returns the action to Idle.
func (b *Bulk) finish(o Outcome, f *eventloop.Future[Outcome]) {
	o.settle()
	b.last[o.Action] = o
	b.state[o.Action] = o.State
	b.announce(o)
	b.c.changed()
	b.state[o.Action] = Idle
	f.Resolve(o, o.Err)
}

// finishAfter refreshes first when refresh is non-nil.
func (b *Bulk) finishAfter(refresh *eventloop.Future[Result], o Outcome, f *eventloop.Future[Outcome]) {
	if refresh == nil {
		b.finish(o, f)
		return
	}
	refresh.OnResolve(func(Result, error) {
		b.finish(o, f)
	})
}

func (b *Bulk) announce(o Outcome) {
	c := b.c
	n := c.opts.Notifier
	var ok, partial, failed string
	switch o.Action {
	case ActionCreate:
		ok, partial, failed = MsgCreateSucceeded, MsgCreatePartial, MsgCreateFailed
	case ActionUpdate:
		ok, partial, failed = MsgUpdateSucceeded, MsgUpdatePartial, MsgUpdateFailed
	case ActionDelete:
		ok, partial, failed = MsgDeleteSucceeded, MsgDeletePartial, MsgDeleteFailed
	}

	done := o.Succeeded + o.Local
	switch o.State {
	case Succeeded:
		n.ShowSuccess(c.t(ok, done))
	case PartiallySucceeded:
		n.ShowWarning(c.t(partial, done, o.Failed))
	case Failed:
		if o.Err != nil {
			c.report(o.Err)
		} else {
			n.ShowError(c.t(failed, o.Failed))
		}
	}
	c.log.Info("bulk action finished",
		"action", o.Action.String(),
		"state", o.State.String(),
		"succeeded", o.Succeeded,
		"failed", o.Failed,
		"local", o.Local,
	)
}

type createSubmission struct {
	id     ID
	values map[string]any
	item   *Item
	err    error
}

// CreateMany persists new rows, each with its own request; one failing row
// does not affect the others. Rows that fail local validation are counted as
// failed without a request. With no ids, every new row is submitted. If any
// row was created the collection is refetched.
func (b *Bulk) CreateMany(ids ...ID) *eventloop.Future[Outcome] {
	c := b.c
	if err := b.begin(ActionCreate); err != nil {
		return eventloop.Resolved(Outcome{Action: ActionCreate, State: Failed, Err: err}, err)
	}
	f := eventloop.NewFuture[Outcome]()
	o := Outcome{Action: ActionCreate}

	if len(ids) == 0 {
		for _, r := range c.rows {
			if r.IsNew() {
				ids = append(ids, r.ID)
			}
		}
	}

	var subs []*createSubmission
	for _, id := range ids {
		row := c.index[id]
		if row == nil || !row.IsNew() {
			continue
		}
		if err := b.validateNew(row); err != nil {
			o.fail(id, err)
			continue
		}
		subs = append(subs, &createSubmission{id: id, values: b.writable(row)})
	}

	if len(subs) == 0 {
		b.finish(o, f)
		return f
	}

	ctx := c.ctx
	go func() {
		var g errgroup.Group
		g.SetLimit(maxConcurrentCreates)
		for _, s := range subs {
			g.Go(func() error {
				s.item, s.err = c.api.Create(ctx, s.values)
				return nil
			})
		}
		_ = g.Wait()
		c.loop.Post(func() {
			b.applyCreate(subs, o, f)
		})
	}()
	return f
}

// writable copies the row's values without read-only fields, which the
// server refuses in a create payload.
func (b *Bulk) writable(row *Row) map[string]any {
	values := maps.Clone(row.Values)
	for _, f := range b.c.opts.Schema.Fields {
		if f.ReadOnly {
			delete(values, f.Name)
		}
	}
	return values
}

func (b *Bulk) validateNew(row *Row) error {
	var first error
	for _, field := range b.c.opts.Schema.Fields {
		if field.ReadOnly {
			continue
		}
		v := row.Values[field.Name]
		if field.Required && isBlank(v) {
			err := &ValidationError{Field: field.Name, Reason: ReasonRequired, Message: "required field is empty"}
			row.setFieldError(field.Name, err.Message)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (b *Bulk) applyCreate(subs []*createSubmission, o Outcome, f *eventloop.Future[Outcome]) {
	c := b.c
	for _, s := range subs {
		if s.err != nil {
			var ae *ApplicationError
			if row := c.index[s.id]; row != nil && errors.As(s.err, &ae) && ae.Field != "" {
				row.setFieldError(ae.Field, c.messageFor(ae))
			}
			o.fail(s.id, s.err)
			continue
		}
		o.Succeeded++

		row := c.index[s.id]
		if row == nil || s.item == nil {
			continue
		}
		values := s.values
		if len(s.item.Values) > 0 {
			values = s.item.Values
		}
		delete(c.index, s.id)
		row.ID = s.item.ID
		row.Values = maps.Clone(values)
		row.Original = maps.Clone(values)
		row.FieldErrors = nil
		c.index[row.ID] = row
		c.selection.rename(s.id, row.ID)
	}

	if o.Failed > 0 && o.Succeeded == 0 {
		// Every request failed; report the first server error as the cause.
		for _, err := range o.Failures {
			if !isValidation(err) {
				o.Err = err
				break
			}
		}
	}

	var refresh *eventloop.Future[Result]
	if o.Succeeded > 0 {
		refresh = c.Refresh()
	}
	b.finishAfter(refresh, o, f)
}

// UpdateMany sends every changed row as one batched request holding only the
// differing fields. Rows the server accepted take the sent values as their
// new originals. If any row failed the collection is refetched, keeping the
// failed rows' unsaved values so they still show as changed. A transport
// failure changes nothing locally.
func (b *Bulk) UpdateMany() *eventloop.Future[Outcome] {
	c := b.c
	if err := b.begin(ActionUpdate); err != nil {
		return eventloop.Resolved(Outcome{Action: ActionUpdate, State: Failed, Err: err}, err)
	}
	f := eventloop.NewFuture[Outcome]()

	var patches []Patch
	for _, r := range c.rows {
		if p, ok := PatchFor(r, c.opts.Precision); ok {
			patches = append(patches, p)
			// The batch carries these values; field commits would duplicate them.
			c.edits.CancelRow(r.ID)
		}
	}
	if len(patches) == 0 {
		b.state[ActionUpdate] = Idle
		c.opts.Notifier.ShowInfo(c.t(MsgNothingToUpdate))
		f.Resolve(Outcome{Action: ActionUpdate, State: Succeeded}, nil)
		return f
	}

	ctx := c.ctx
	go func() {
		res, err := c.api.UpdateItems(ctx, patches)
		c.loop.Post(func() {
			b.applyUpdate(patches, res, err, f)
		})
	}()
	return f
}

func (b *Bulk) applyUpdate(patches []Patch, res *BatchResult, err error, f *eventloop.Future[Outcome]) {
	c := b.c
	o := Outcome{Action: ActionUpdate}

	if err != nil {
		o.Err = err
		for _, p := range patches {
			o.fail(p.ID, err)
		}
		var refresh *eventloop.Future[Result]
		if !IsRetryable(err) {
			refresh = c.RefreshPreserving(dirtyValues(patches))
		}
		b.finishAfter(refresh, o, f)
		return
	}

	ok := make(map[ID]bool, len(res.Succeeded))
	for _, id := range res.Succeeded {
		ok[id] = true
	}
	failed := make(map[ID]ItemError, len(res.Failed))
	for _, ie := range res.Failed {
		failed[ie.ID] = ie
	}

	var dirty []Patch
	for _, p := range patches {
		if ie, bad := failed[p.ID]; bad || !ok[p.ID] {
			o.fail(p.ID, itemFailure(ie, bad, "update"))
			dirty = append(dirty, p)
			continue
		}
		o.Succeeded++
		if row := c.index[p.ID]; row != nil {
			acceptPatch(row, p.Changes)
		}
	}

	var refresh *eventloop.Future[Result]
	if len(dirty) > 0 || res.TotalErrors > 0 {
		refresh = c.RefreshPreserving(dirtyValues(dirty))
	} else {
		c.changed()
	}
	b.finishAfter(refresh, o, f)
}

func dirtyValues(patches []Patch) map[ID]map[string]any {
	out := make(map[ID]map[string]any, len(patches))
	for _, p := range patches {
		out[p.ID] = p.Changes
	}
	return out
}

// DeleteMany removes rows. Rows that were never saved are dropped locally;
// the rest go to the server in one request. Every requested id leaves the
// selection whatever the outcome, and the collection is always refetched
// after a server request.
func (b *Bulk) DeleteMany(ids ...ID) *eventloop.Future[Outcome] {
	c := b.c
	if err := b.begin(ActionDelete); err != nil {
		return eventloop.Resolved(Outcome{Action: ActionDelete, State: Failed, Err: err}, err)
	}
	f := eventloop.NewFuture[Outcome]()
	o := Outcome{Action: ActionDelete}

	var local, remote []ID
	for _, id := range ids {
		if row := c.index[id]; id.IsTemp() || (row != nil && row.IsNew()) {
			local = append(local, id)
		} else {
			remote = append(remote, id)
		}
		c.edits.CancelRow(id)
	}
	c.selection.Remove(ids...)
	c.removeRows(local)
	o.Local = len(local)

	if len(remote) == 0 {
		b.finish(o, f)
		return f
	}

	ctx := c.ctx
	go func() {
		res, err := c.api.DeleteItems(ctx, remote)
		c.loop.Post(func() {
			b.applyDelete(remote, res, err, o, f)
		})
	}()
	return f
}

// DeleteSelected deletes every selected row, leaving the selection empty.
func (b *Bulk) DeleteSelected() *eventloop.Future[Outcome] {
	return b.DeleteMany(b.c.selection.IDs()...)
}

func (b *Bulk) applyDelete(remote []ID, res *BatchResult, err error, o Outcome, f *eventloop.Future[Outcome]) {
	c := b.c
	if err != nil {
		o.Err = err
		for _, id := range remote {
			o.fail(id, err)
		}
	} else {
		ok := make(map[ID]bool, len(res.Succeeded))
		for _, id := range res.Succeeded {
			ok[id] = true
		}
		failed := make(map[ID]ItemError, len(res.Failed))
		for _, ie := range res.Failed {
			failed[ie.ID] = ie
		}
		var gone []ID
		for _, id := range remote {
			if ie, bad := failed[id]; bad || !ok[id] {
				o.fail(id, itemFailure(ie, bad, "delete"))
				continue
			}
			o.Succeeded++
			gone = append(gone, id)
		}
		c.removeRows(gone)
	}
	b.finishAfter(c.Refresh(), o, f)
}

// itemFailure describes a row the server reported as failed, or did not
// report at all. Bare errorItems ids carry no message.
func itemFailure(ie ItemError, reported bool, verb string) *ApplicationError {
	switch {
	case !reported:
		ie.Message = verb + " not confirmed by server"
	case ie.Message == "":
		ie.Message = verb + " rejected by server"
	}
	return &ApplicationError{Message: ie.Message, Code: ie.Code}
}

func isValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
