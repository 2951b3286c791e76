package cli

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ev2/internal/collection"
	"github.com/JonMunkholm/ev2/internal/eventloop"
	"github.com/JonMunkholm/ev2/internal/precision"
)

// errQuit ends the shell without an error.
var errQuit = errors.New("quit")

// shellCommand handles one input line. It runs on the loop goroutine. A
// non-nil channel is closed once the asynchronous part has finished; the
// prompt is shown again only after that.
type shellCommand struct {
	usage string
	help  string
	run   func(sh *shell, args []string) (<-chan struct{}, error)
}

var shellCommands map[string]shellCommand

func init() {
	shellCommands = map[string]shellCommand{
		"help":      {"help", "show this list", (*shell).help},
		"show":      {"show", "print the current page", (*shell).show},
		"search":    {"search [text]", "search as you type; no text clears it", (*shell).search},
		"page":      {"page <n>", "go to page n", (*shell).page},
		"size":      {"size <n>", "items per page", (*shell).size},
		"sort":      {"sort [field] [desc]", "sort by field; no field restores server order", (*shell).sort},
		"filter":    {"filter <name> [value]", "set a filter; no value clears it", (*shell).filter},
		"refresh":   {"refresh", "fetch the current page again", (*shell).refresh},
		"select":    {"select <id>... | all | none", "toggle selection", (*shell).selectRows},
		"set":       {"set <id> <field=value>...", "edit fields; saved rows commit after a pause", (*shell).set},
		"flush":     {"flush", "commit pending field edits now", (*shell).flush},
		"add":       {"add [field=value]...", "add a new local row", (*shell).add},
		"drop":      {"drop <id>...", "remove rows from the view without saving", (*shell).drop},
		"save":      {"save", "save all changed rows in one batch", (*shell).save},
		"create":    {"create", "create all new rows", (*shell).create},
		"delete":    {"delete [id]...", "delete the given or the selected rows", (*shell).remove},
		"precision": {"precision <places|none>", "decimal places for price comparison", (*shell).precision},
		"quit":      {"quit", "leave the shell", (*shell).quit},
	}
}

// shell is an interactive session on one collection. Its loop runs on a
// goroutine of its own so that debounced searches and edit commits fire
// while the shell waits for input.
type shell struct {
	v      *view
	out    io.Writer
	locale string
}

func newShellCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell <collection>",
		Short: "Edit a collection interactively",
		Long: `Open an interactive session on a collection. Type "help" for the list of
commands. Values containing spaces are quoted whole: set 42 "name=Basic plan".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sh := &shell{v: v, out: cmd.OutOrStdout(), locale: a.cfg.Locale}
			return sh.serve(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// serve reads commands from in until EOF, quit or ctx ends.
func (sh *shell) serve(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = sh.v.loop.Run(ctx)
	}()
	defer func() {
		cancel()
		<-loopDone
		sh.v.close()
	}()

	if err := sh.exec(ctx, []string{"refresh"}); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprintf(sh.out, "%s> ", sh.v.info.Key)
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		args, err := splitLine(scanner.Text())
		if err != nil {
			_, _ = fmt.Fprintf(sh.out, "error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		err = sh.exec(ctx, args)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			_, _ = fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
}

// exec posts one command to the loop and waits for it to finish.
func (sh *shell) exec(ctx context.Context, args []string) error {
	name := strings.ToLower(args[0])
	if name == "exit" {
		name = "quit"
	}
	c, ok := shellCommands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", args[0])
	}

	type started struct {
		wait <-chan struct{}
		err  error
	}
	ch := make(chan started, 1)
	sh.v.loop.Post(func() {
		wait, err := c.run(sh, args[1:])
		ch <- started{wait, err}
	})

	var s started
	select {
	case s = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.err != nil || s.wait == nil {
		return s.err
	}
	select {
	case <-s.wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// then registers fn to run on the loop when f resolves and returns a
// channel closed afterwards.
func then[T any](f *eventloop.Future[T], fn func(T, error)) <-chan struct{} {
	done := make(chan struct{})
	f.OnResolve(func(v T, err error) {
		defer close(done)
		fn(v, err)
	})
	return done
}

// fetched prints the page once a fetch completes.
func (sh *shell) fetched(f *eventloop.Future[collection.Result]) <-chan struct{} {
	return then(f, func(_ collection.Result, err error) {
		if err != nil {
			sh.printf("error: %v\n", err)
			return
		}
		sh.render()
	})
}

// settled prints a bulk outcome. The page was already refetched when needed.
func (sh *shell) settled(f *eventloop.Future[collection.Outcome]) <-chan struct{} {
	return then(f, func(o collection.Outcome, err error) {
		if oerr := outcomeError(sh.out, o); oerr != nil && err == nil {
			err = oerr
		}
		if err != nil {
			sh.printf("error: %v\n", err)
		}
		sh.render()
	})
}

func (sh *shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) render() {
	if err := renderRows(sh.out, sh.v.coll, sh.locale); err != nil {
		sh.printf("error: %v\n", err)
	}
}

func (sh *shell) help([]string) (<-chan struct{}, error) {
	names := make([]string, 0, len(shellCommands))
	for name := range shellCommands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := shellCommands[name]
		sh.printf("  %-30s %s\n", c.usage, c.help)
	}
	return nil, nil
}

func (sh *shell) show([]string) (<-chan struct{}, error) {
	sh.render()
	return nil, nil
}

func (sh *shell) search(args []string) (<-chan struct{}, error) {
	text := strings.Join(args, " ")
	q := sh.v.coll.Query()
	q.SearchText = text
	if !q.Searchable() {
		return nil, fmt.Errorf("search text must have at least %d characters", collection.MinSearchLen)
	}
	return sh.fetched(sh.v.coll.SetSearchText(text)), nil
}

func (sh *shell) page(args []string) (<-chan struct{}, error) {
	n, err := intArg(args, "page")
	if err != nil {
		return nil, err
	}
	if total := sh.v.coll.TotalPages(); total > 0 && n > total {
		return nil, fmt.Errorf("page %d is past the last page %d", n, total)
	}
	return sh.fetched(sh.v.coll.SetPage(n)), nil
}

func (sh *shell) size(args []string) (<-chan struct{}, error) {
	n, err := intArg(args, "size")
	if err != nil {
		return nil, err
	}
	if !slices.Contains(sh.v.coll.PageSizes(), n) {
		return nil, fmt.Errorf("size must be one of %v", sh.v.coll.PageSizes())
	}
	return sh.fetched(sh.v.coll.SetQuery(collection.QueryPatch{PageSize: &n})), nil
}

func (sh *shell) sort(args []string) (<-chan struct{}, error) {
	var field string
	desc := false
	if len(args) > 0 {
		field = args[0]
		if _, ok := sh.v.coll.Schema().Field(field); !ok {
			return nil, fmt.Errorf("%w: %s", collection.ErrUnknownField, field)
		}
	}
	if len(args) > 1 {
		desc = strings.EqualFold(args[1], "desc")
	}
	return sh.fetched(sh.v.coll.SetSort(field, desc)), nil
}

func (sh *shell) filter(args []string) (<-chan struct{}, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: filter <name> [value]")
	}
	value := collection.FilterAll
	if len(args) > 1 {
		value = strings.Join(args[1:], " ")
	}
	return sh.fetched(sh.v.coll.SetFilter(args[0], value)), nil
}

func (sh *shell) refresh([]string) (<-chan struct{}, error) {
	return sh.fetched(sh.v.coll.Refresh()), nil
}

func (sh *shell) selectRows(args []string) (<-chan struct{}, error) {
	sel := sh.v.coll.Selection()
	switch {
	case len(args) == 0:
		return nil, errors.New("usage: select <id>... | all | none")
	case len(args) == 1 && args[0] == "none":
		sel.Clear()
	case len(args) == 1 && args[0] == "all":
		for _, r := range sh.v.coll.Rows() {
			if !sel.IsSelected(r.ID) {
				sel.Toggle(r.ID)
			}
		}
	default:
		for _, arg := range args {
			id := collection.ID(arg)
			if sh.v.coll.Row(id) == nil {
				return nil, fmt.Errorf("%w: %s", collection.ErrRowNotFound, id)
			}
			sel.Toggle(id)
		}
	}
	sh.printf("%d selected\n", sel.Size())
	return nil, nil
}

func (sh *shell) set(args []string) (<-chan struct{}, error) {
	if len(args) < 2 {
		return nil, errors.New("usage: set <id> <field=value>...")
	}
	as, err := parseAssignments(args[1:])
	if err != nil {
		return nil, err
	}
	err = scheduleAll(sh.v, collection.ID(args[0]), as)
	if n := sh.v.coll.Edits().PendingCount(); n > 0 {
		sh.printf("%d edit(s) pending\n", n)
	}
	return nil, err
}

func (sh *shell) flush([]string) (<-chan struct{}, error) {
	return then(sh.v.coll.Edits().Flush(), func(_ struct{}, err error) {
		if err != nil {
			sh.printf("error: %v\n", err)
			return
		}
		sh.render()
	}), nil
}

func (sh *shell) add(args []string) (<-chan struct{}, error) {
	as, err := parseAssignments(args)
	if err != nil {
		return nil, err
	}
	id := sh.v.coll.AddEmptyRow()
	sh.printf("added %s\n", id)
	return nil, scheduleAll(sh.v, id, as)
}

func (sh *shell) drop(args []string) (<-chan struct{}, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: drop <id>...")
	}
	ids := make([]collection.ID, 0, len(args))
	for _, arg := range args {
		ids = append(ids, collection.ID(arg))
	}
	sh.v.coll.RemoveLocal(ids...)
	return nil, nil
}

func (sh *shell) save([]string) (<-chan struct{}, error) {
	return sh.settled(sh.v.coll.Bulk().UpdateMany()), nil
}

func (sh *shell) create([]string) (<-chan struct{}, error) {
	return sh.settled(sh.v.coll.Bulk().CreateMany()), nil
}

func (sh *shell) remove(args []string) (<-chan struct{}, error) {
	bulk := sh.v.coll.Bulk()
	if len(args) == 0 {
		if sh.v.coll.Selection().Size() == 0 {
			return nil, errors.New("nothing selected")
		}
		return sh.settled(bulk.DeleteSelected()), nil
	}
	ids := make([]collection.ID, 0, len(args))
	for _, arg := range args {
		ids = append(ids, collection.ID(arg))
	}
	return sh.settled(bulk.DeleteMany(ids...)), nil
}

func (sh *shell) precision(args []string) (<-chan struct{}, error) {
	if len(args) != 1 {
		return nil, errors.New("usage: precision <places|none>")
	}
	p := precision.None
	if args[0] != "none" {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid precision %q", args[0])
		}
		p = precision.Places(n)
	}
	sh.v.coll.SetPrecision(p)
	sh.render()
	return nil, nil
}

func (sh *shell) quit([]string) (<-chan struct{}, error) {
	if n := sh.v.coll.ChangedCount(); n > 0 {
		sh.printf("warning: %d unsaved row(s) discarded\n", n)
	}
	return nil, errQuit
}

func intArg(args []string, name string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s <n>", name)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return n, nil
}

// splitLine splits on spaces; a double-quoted word may contain spaces.
func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = ' '
	r.LazyQuotes = true
	record, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(record, func(s string) bool { return s == "" }), nil
}
