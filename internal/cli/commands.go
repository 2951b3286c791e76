package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ev2/internal/collection"
)

// queryFlags are the list parameters shared by commands that fetch a page.
type queryFlags struct {
	page    int
	search  string
	sort    string
	desc    bool
	filters map[string]string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&q.page, "page", 1, "page number")
	f.StringVarP(&q.search, "search", "s", "", "search text (at least 2 characters)")
	f.StringVar(&q.sort, "sort", "", "field to sort by")
	f.BoolVar(&q.desc, "desc", false, "sort descending")
	f.StringToStringVarP(&q.filters, "filter", "f", nil, "filter as field=value, repeatable")
}

func (q *queryFlags) patch() collection.QueryPatch {
	p := collection.QueryPatch{
		Page:    collection.Ptr(q.page),
		Filters: q.filters,
	}
	if q.search != "" {
		p.SearchText = collection.Ptr(q.search)
	}
	if q.sort != "" {
		p.SortField = collection.Ptr(q.sort)
		p.SortDescending = collection.Ptr(q.desc)
	}
	return p
}

// fetch applies the query flags and waits for the page. Search text is
// fetched at once instead of after the debounce delay.
func (q *queryFlags) fetch(cmd *cobra.Command, v *view) error {
	v.coll.SetQuery(q.patch())
	if _, err := await(cmd.Context(), v, v.coll.Search()); err != nil {
		if errors.Is(err, collection.ErrSearchTooShort) {
			return fmt.Errorf("search text must have at least %d characters", collection.MinSearchLen)
		}
		return err
	}
	return nil
}

func newCollectionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "collections",
		Aliases: []string{"ls"},
		Short:   "List the collections the server exposes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := a.backend.Collections(cmd.Context())
			if err != nil {
				return err
			}
			return renderCollections(cmd.OutOrStdout(), infos)
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "Show one page of a collection",
		Example: `  ev2ctl list products --search basic --filter status=active
  ev2ctl list price_list_items --sort price --desc --page 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.open(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer v.close()

			if err := q.fetch(cmd, v); err != nil {
				return err
			}
			return renderRows(cmd.OutOrStdout(), v.coll, a.cfg.Locale)
		},
	}
	q.register(cmd)
	return cmd
}

func newSetCommand(a *app) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "set <collection> <id> <field=value>...",
		Short: "Change fields of one item",
		Long: `Change fields of one item. The item must be on the page selected by the
query flags; each field is validated locally and then saved on its own.`,
		Example: `  ev2ctl set products 3f2a... status=inactive price=19.99`,
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}

			v, err := a.open(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer v.close()

			if err := q.fetch(cmd, v); err != nil {
				return err
			}
			id := collection.ID(args[1])
			if v.coll.Row(id) == nil {
				return fmt.Errorf("item %s is not on page %d; narrow the query with --search or --filter", id, v.coll.Query().Page)
			}

			if err := scheduleAll(v, id, assignments); err != nil {
				return err
			}
			if _, err := await(cmd.Context(), v, v.coll.Edits().Flush()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %s: %s\n", id, strings.Join(assignmentFields(assignments), ", "))
			return err
		},
	}
	q.register(cmd)
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <collection> <id>...",
		Short: "Delete items by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]collection.ID, 0, len(args)-1)
			for _, arg := range args[1:] {
				ids = append(ids, collection.ID(arg))
			}
			if !yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete %d item(s) from %s?", len(ids), args[0])) {
				return errors.New("aborted")
			}

			v, err := a.open(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer v.close()

			o, err := await(cmd.Context(), v, v.coll.Bulk().DeleteMany(ids...))
			if err != nil {
				return err
			}
			return outcomeError(cmd.ErrOrStderr(), o)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// assignment is one field=value argument.
type assignment struct {
	field string
	raw   string
}

func parseAssignments(args []string) ([]assignment, error) {
	out := make([]assignment, 0, len(args))
	for _, arg := range args {
		field, raw, ok := strings.Cut(arg, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid assignment %q, want field=value", arg)
		}
		out = append(out, assignment{field: field, raw: raw})
	}
	return out, nil
}

func assignmentFields(as []assignment) []string {
	names := make([]string, 0, len(as))
	for _, a := range as {
		names = append(names, a.field)
	}
	return names
}

// scheduleAll stores every assignment on the row. All validation failures
// are reported together.
func scheduleAll(v *view, id collection.ID, as []assignment) error {
	var errs []error
	for _, a := range as {
		if err := v.coll.Edits().Schedule(id, a.field, a.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// outcomeError lists per-item failures and turns anything short of full
// success into an error for the exit status.
func outcomeError(w io.Writer, o collection.Outcome) error {
	ids := make([]collection.ID, 0, len(o.Failures))
	for id := range o.Failures {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "  %s: %v\n", id, o.Failures[id])
	}

	switch o.State {
	case collection.Succeeded:
		return nil
	case collection.PartiallySucceeded:
		return fmt.Errorf("%s: %d failed", o.Action, o.Failed)
	default:
		if o.Err != nil {
			return o.Err
		}
		return fmt.Errorf("%s failed", o.Action)
	}
}

// confirm asks a yes/no question on w and reads the answer from r.
func confirm(r io.Reader, w io.Writer, question string) bool {
	_, _ = fmt.Fprintf(w, "%s [y/N] ", question)
	line, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
