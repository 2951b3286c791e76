// Package collection implements an editable, paginated, filterable view of a
// server-side collection.
//
// A Collection owns its rows, query, selection, pending edits and bulk action
// state. All of it is confined to an eventloop.Loop: methods must be called
// from the loop goroutine (or from a function posted to it), and results of
// network calls are posted back to the loop before they touch any state.
package collection

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/JonMunkholm/ev2/internal/eventloop"
	"github.com/JonMunkholm/ev2/internal/precision"
)

// Options configures a Collection. Zero values select the defaults.
type Options struct {
	Schema      Schema
	PageSizes   []int
	PageSize    int
	SearchDelay time.Duration // default 500ms
	TextDelay   time.Duration // default 800ms
	ChoiceDelay time.Duration // default 300ms
	Precision   precision.Policy

	Logger     *slog.Logger
	Notifier   Notifier
	Translator Translator
	Session    Session
}

func (o *Options) setDefaults() {
	if len(o.PageSizes) == 0 {
		o.PageSizes = DefaultPageSizes
	}
	if !slices.Contains(o.PageSizes, o.PageSize) {
		o.PageSize = o.PageSizes[0]
		if slices.Contains(o.PageSizes, 25) {
			o.PageSize = 25
		}
	}
	if o.SearchDelay <= 0 {
		o.SearchDelay = 500 * time.Millisecond
	}
	if o.TextDelay <= 0 {
		o.TextDelay = 800 * time.Millisecond
	}
	if o.ChoiceDelay <= 0 {
		o.ChoiceDelay = 300 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Translator == nil {
		o.Translator = keyTranslator{}
	}
}

// Result summarizes an applied fetch.
type Result struct {
	Query      Query
	TotalItems int
	TotalPages int
}

// Collection is the fetch/filter/paginate controller of one collection and
// the owner of its editing state.
type Collection struct {
	loop *eventloop.Loop
	api  API
	opts Options
	log  *slog.Logger

	ctx  context.Context
	stop context.CancelFunc

	query      Query
	rows       []*Row
	index      map[ID]*Row
	totalItems int
	totalPages int
	loading    bool
	lastErr    error

	// epoch increases with every request; only the newest response is applied.
	epoch          uint64
	cancelInFlight context.CancelFunc
	fetchQueued    bool
	waiters        []*eventloop.Future[Result]
	searchWaiters  []*eventloop.Future[Result]
	search         *eventloop.Debouncer

	// Applied with the next accepted response.
	pruneSelection bool
	preserve       map[ID]map[string]any

	selection *Selection
	edits     *Editor
	bulk      *Bulk
	listeners []func()
}

// New creates a collection bound to loop. Nothing is fetched until Refresh
// or SetQuery is called.
func New(loop *eventloop.Loop, api API, opts Options) *Collection {
	opts.setDefaults()
	ctx, stop := context.WithCancel(context.Background())

	c := &Collection{
		loop:      loop,
		api:       api,
		opts:      opts,
		log:       opts.Logger.With("collection", opts.Schema.Name),
		ctx:       ctx,
		stop:      stop,
		query:     NewQuery(opts.PageSize),
		index:     make(map[ID]*Row),
		search:    eventloop.NewDebouncer(loop, opts.SearchDelay),
		selection: NewSelection(),
	}
	c.edits = newEditor(c)
	c.bulk = newBulk(c)
	return c
}

// Close cancels in-flight requests and pending timers. Responses arriving
// afterwards are ignored.
func (c *Collection) Close() {
	c.search.Stop()
	c.edits.CancelAll()
	c.stop()
	c.epoch++
	c.resolveWaiters(append(c.waiters, c.searchWaiters...), ErrClosed)
	c.waiters, c.searchWaiters = nil, nil
}

func (c *Collection) Schema() *Schema { return &c.opts.Schema }
func (c *Collection) Query() Query { return c.query.clone() }
func (c *Collection) Rows() []*Row { return c.rows }
func (c *Collection) TotalItems() int { return c.totalItems }
func (c *Collection) TotalPages() int { return c.totalPages }
func (c *Collection) Loading() bool { return c.loading }
func (c *Collection) Err() error { return c.lastErr }
func (c *Collection) Selection() *Selection { return c.selection }
func (c *Collection) Edits() *Editor { return c.edits }
func (c *Collection) Bulk() *Bulk { return c.bulk }
func (c *Collection) Precision() precision.Policy { return c.opts.Precision }
func (c *Collection) PageSizes() []int { return c.opts.PageSizes }

// Row returns the row with id, or nil.
func (c *Collection) Row(id ID) *Row {
	return c.index[id]
}

// SetPrecision changes the rounding policy used for price edits and change
// detection, for example after the price list currency changed.
func (c *Collection) SetPrecision(p precision.Policy) {
	c.opts.Precision = p
	c.changed()
}

// ChangedCount returns the number of rows with unsaved changes.
func (c *Collection) ChangedCount() int {
	return ChangedCount(c.rows, c.opts.Precision)
}

// OnChange registers fn to run on the loop after every state change.
func (c *Collection) OnChange(fn func()) {
	c.listeners = append(c.listeners, fn)
}

func (c *Collection) changed() {
	for _, fn := range c.listeners {
		fn()
	}
}

// SetQuery merges p into the current query and fetches. Search text changes
// are debounced; any other change fetches at the end of the current loop turn,
// coalesced with other changes made in the same turn.
func (c *Collection) SetQuery(p QueryPatch) *eventloop.Future[Result] {
	if p.PageSize != nil && !slices.Contains(c.opts.PageSizes, *p.PageSize) {
		c.log.Warn("ignoring unsupported page size", "page_size", *p.PageSize)
		p.PageSize = nil
	}
	if p.Page != nil && *p.Page < 1 {
		p.Page = Ptr(1)
	}

	next, ch := c.query.apply(p)
	c.query = next
	if ch.search || ch.filters {
		c.pruneSelection = true
	}

	if ch.search {
		f := eventloop.NewFuture[Result]()
		c.searchWaiters = append(c.searchWaiters, f)
		c.search.Trigger(func() { c.fetchSearch() })
		c.changed()
		return f
	}
	c.changed()
	return c.fetchSearch()
}

// SetPage moves to page n.
func (c *Collection) SetPage(n int) *eventloop.Future[Result] {
	return c.SetQuery(QueryPatch{Page: &n})
}

// SetSearchText updates the search text; the fetch is debounced.
func (c *Collection) SetSearchText(s string) *eventloop.Future[Result] {
	return c.SetQuery(QueryPatch{SearchText: &s})
}

// SetFilter sets or, with FilterAll, clears one filter.
func (c *Collection) SetFilter(name, value string) *eventloop.Future[Result] {
	return c.SetQuery(QueryPatch{Filters: map[string]string{name: value}})
}

// SetSort orders by field; an empty field restores server order.
func (c *Collection) SetSort(field string, descending bool) *eventloop.Future[Result] {
	return c.SetQuery(QueryPatch{SortField: &field, SortDescending: &descending})
}

// Search fetches immediately with the current search text, cancelling a
// pending debounced search.
func (c *Collection) Search() *eventloop.Future[Result] {
	return c.fetchSearch()
}

// Refresh refetches the current query.
func (c *Collection) Refresh() *eventloop.Future[Result] {
	return c.requestFetch()
}

// RefreshPreserving refetches and then re-applies dirty values onto the
// fetched rows with the same ids, so unsaved edits stay visible as changes.
func (c *Collection) RefreshPreserving(dirty map[ID]map[string]any) *eventloop.Future[Result] {
	if c.preserve == nil {
		c.preserve = make(map[ID]map[string]any)
	}
	for id, values := range dirty {
		c.preserve[id] = values
	}
	return c.requestFetch()
}

func (c *Collection) fetchSearch() *eventloop.Future[Result] {
	c.search.Stop()
	f := c.requestFetch()
	c.waiters = append(c.waiters, c.searchWaiters...)
	c.searchWaiters = nil
	return f
}

// requestFetch queues one fetch for the end of the current loop turn.
func (c *Collection) requestFetch() *eventloop.Future[Result] {
	f := eventloop.NewFuture[Result]()
	c.waiters = append(c.waiters, f)
	if !c.fetchQueued {
		c.fetchQueued = true
		c.loop.Post(c.startFetch)
	}
	return f
}

func (c *Collection) startFetch() {
	c.fetchQueued = false
	waiters := c.waiters
	c.waiters = nil

	if c.ctx.Err() != nil {
		c.resolveWaiters(waiters, ErrClosed)
		return
	}
	if !c.query.Searchable() {
		// Keep the current result set until the text is long enough.
		c.resolveWaiters(waiters, ErrSearchTooShort)
		return
	}
	if err := c.authorized(); err != nil {
		c.resolveWaiters(waiters, err)
		return
	}

	if c.cancelInFlight != nil {
		c.cancelInFlight()
	}
	c.epoch++
	epoch := c.epoch
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelInFlight = cancel
	q := c.query.clone()

	c.loading = true
	c.changed()
	c.log.Debug("fetching collection", "epoch", epoch, "page", q.Page, "search", q.SearchText)

	go func() {
		page, err := c.api.List(ctx, q)
		c.loop.Post(func() {
			c.applyFetch(epoch, page, err, waiters)
		})
	}()
}

func (c *Collection) applyFetch(epoch uint64, page *Page, err error, waiters []*eventloop.Future[Result]) {
	if epoch != c.epoch {
		c.log.Debug("discarding stale response", "epoch", epoch, "current", c.epoch)
		c.resolveWaiters(waiters, ErrSuperseded)
		return
	}
	c.cancelInFlight()
	c.cancelInFlight = nil
	c.loading = false

	if err != nil {
		// Previous rows stay visible.
		c.lastErr = err
		c.report(err)
		c.changed()
		c.resolveWaiters(waiters, err)
		return
	}
	c.lastErr = nil
	c.replaceRows(page.Items)

	c.totalItems = page.TotalItems
	c.totalPages = page.TotalPages
	if last := max(page.TotalPages, 1); c.query.Page > last {
		c.log.Debug("clamping page", "page", c.query.Page, "total_pages", page.TotalPages)
		c.query.Page = last
	}

	c.changed()
	res := Result{Query: c.query.clone(), TotalItems: c.totalItems, TotalPages: c.totalPages}
	for _, w := range waiters {
		w.Resolve(res, nil)
	}
}

// replaceRows installs fetched items, keeping unsaved local rows on top.
func (c *Collection) replaceRows(items []Item) {
	var rows []*Row
	index := make(map[ID]*Row, len(items))
	for _, r := range c.rows {
		if r.IsNew() {
			rows = append(rows, r)
			index[r.ID] = r
		}
	}
	for _, item := range items {
		r := rowFromItem(item)
		if dirty, ok := c.preserve[r.ID]; ok {
			for field, v := range dirty {
				r.Values[field] = v
			}
		}
		rows = append(rows, r)
		index[r.ID] = r
	}
	c.rows = rows
	c.index = index
	c.preserve = nil

	if c.pruneSelection {
		c.selection.Retain(func(id ID) bool { return index[id] != nil })
		c.pruneSelection = false
	}
}

// AddEmptyRow inserts a new local row at the top and returns its id.
func (c *Collection) AddEmptyRow() ID {
	r := newLocalRow(c.opts.Schema.Fields)
	c.rows = append([]*Row{r}, c.rows...)
	c.index[r.ID] = r
	c.changed()
	return r.ID
}

// RemoveLocal drops rows from the view without contacting the server,
// together with their selection and pending edits.
func (c *Collection) RemoveLocal(ids ...ID) {
	c.removeRows(ids)
	c.changed()
}

func (c *Collection) removeRows(ids []ID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[ID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(c.index, id)
		c.edits.CancelRow(id)
	}
	c.selection.Remove(ids...)
	c.rows = slices.DeleteFunc(c.rows, func(r *Row) bool { return drop[r.ID] })
}

func (c *Collection) authorized() error {
	if c.opts.Session != nil && !c.opts.Session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

func (c *Collection) resolveWaiters(ws []*eventloop.Future[Result], err error) {
	for _, w := range ws {
		w.Resolve(Result{}, err)
	}
}

// report surfaces err through the notifier. Validation errors are inline and
// are not reported here.
func (c *Collection) report(err error) {
	var (
		ve *ValidationError
		ne *NetworkError
		ae *ApplicationError
	)
	switch {
	case errors.As(err, &ve):
		return
	case errors.As(err, &ne):
		c.log.Warn("request failed", "op", ne.Op, "error", ne.Err)
		c.opts.Notifier.ShowError(c.t(MsgNetworkError))
	case errors.As(err, &ae):
		c.log.Info("request rejected", "code", ae.Code, "message", ae.Message)
		c.opts.Notifier.ShowError(c.messageFor(ae))
	case errors.Is(err, context.Canceled):
		return
	default:
		c.log.Error("request failed", "error", err)
		c.opts.Notifier.ShowError(err.Error())
	}
}

// messageFor maps an application error code to a translated message,
// falling back to the server's text.
func (c *Collection) messageFor(ae *ApplicationError) string {
	if ae.Code != "" {
		key := MsgCodePrefix + ae.Code
		if msg := c.t(key); msg != key {
			return msg
		}
	}
	return ae.Message
}

func (c *Collection) t(key string, args ...any) string {
	return c.opts.Translator.T(key, args...)
}
