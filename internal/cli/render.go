package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/JonMunkholm/ev2/internal/apiclient"
	"github.com/JonMunkholm/ev2/internal/collection"
	"github.com/JonMunkholm/ev2/internal/precision"
)

// Row markers in the first column.
const (
	markSelected = "*"
	markNew      = "+"
	markChanged  = "~"
	markError    = "!"
)

// renderRows writes the current page of c as a table followed by a
// one-line summary.
func renderRows(w io.Writer, c *collection.Collection, locale string) error {
	schema := c.Schema()

	header := []string{"", "ID"}
	for _, f := range schema.Fields {
		header = append(header, fieldTitle(f))
	}

	table := tablewriter.NewWriter(w)
	table.Header(header)
	for _, r := range c.Rows() {
		cells := []string{rowMarks(c, r), string(r.ID)}
		for _, f := range schema.Fields {
			cells = append(cells, cellText(r, f, c.Precision(), locale))
		}
		if err := table.Append(cells); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w, summary(c))
	return err
}

func summary(c *collection.Collection) string {
	q := c.Query()
	parts := []string{fmt.Sprintf("page %d/%d, %d items", q.Page, max(c.TotalPages(), 1), c.TotalItems())}
	if n := c.Selection().Size(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	if n := c.ChangedCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", n))
	}
	if n := c.Edits().PendingCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", n))
	}
	return strings.Join(parts, ", ")
}

func fieldTitle(f collection.Field) string {
	title := f.Label
	if title == "" {
		title = f.Name
	}
	if f.Required {
		title += " *"
	}
	return title
}

func rowMarks(c *collection.Collection, r *collection.Row) string {
	var b strings.Builder
	if c.Selection().IsSelected(r.ID) {
		b.WriteString(markSelected)
	}
	switch {
	case r.IsNew():
		b.WriteString(markNew)
	case collection.IsChanged(r, c.Precision()):
		b.WriteString(markChanged)
	}
	if len(r.FieldErrors) > 0 {
		b.WriteString(markError)
	}
	return b.String()
}

// cellText formats prices with the locale's separators and shows field
// errors next to the rejected input.
func cellText(r *collection.Row, f collection.Field, p precision.Policy, locale string) string {
	text := r.Text(f.Name)
	if f.Kind == collection.KindPrice {
		if _, raw := r.Display[f.Name]; !raw {
			if v, ok := r.Value(f.Name).(float64); ok {
				text = precision.Format(v, "", p, locale)
			}
		}
	}
	if msg, bad := r.FieldErrors[f.Name]; bad {
		text += " (" + msg + ")"
	}
	return text
}

// renderCollections lists collections grouped as the server orders them.
func renderCollections(w io.Writer, infos []apiclient.CollectionInfo) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Group", "Key", "Label", "Fields", "Filters"})
	for _, ci := range infos {
		names := make([]string, 0, len(ci.Fields))
		for _, f := range ci.Fields {
			names = append(names, f.Name+":"+f.Kind)
		}
		row := []string{ci.Group, ci.Key, ci.Label, strings.Join(names, " "), strings.Join(ci.Filters, " ")}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
