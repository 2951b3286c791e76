package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/ev2/internal/collection"
)

// DefaultImportBatch is the number of rows submitted per CreateMany call.
const DefaultImportBatch = 100

// importReport tallies one import run.
type importReport struct {
	Rows    int
	Created int
	Invalid int // rejected locally, never sent
	Failed  int // rejected by the server
}

func (r importReport) String() string {
	return fmt.Sprintf("%d rows: %d created, %d invalid, %d failed", r.Rows, r.Created, r.Invalid, r.Failed)
}

// csvSource reads records from a CSV file. A UTF-8 or UTF-16 byte order
// mark is honored and invalid UTF-8 becomes U+FFFD, so spreadsheet exports
// load as they are.
func csvSource(r io.Reader) *csv.Reader {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return cr
}

// mapHeader resolves header cells to field names by name or label, ignoring
// case. Read-only fields map to "" and are skipped.
func mapHeader(header []string, schema *collection.Schema) ([]string, error) {
	fields := make([]string, len(header))
	var unknown []string
	for i, cell := range header {
		cell = strings.TrimSpace(cell)
		var match *collection.Field
		for j := range schema.Fields {
			f := &schema.Fields[j]
			if strings.EqualFold(cell, f.Name) || (f.Label != "" && strings.EqualFold(cell, f.Label)) {
				match = f
				break
			}
		}
		switch {
		case match == nil:
			unknown = append(unknown, cell)
		case !match.ReadOnly:
			fields[i] = match.Name
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown columns: %s", strings.Join(unknown, ", "))
	}
	return fields, nil
}

// importer loads CSV records into new rows and creates them in batches.
type importer struct {
	v      *view
	out    io.Writer
	batch  int
	dryRun bool
}

func (im *importer) run(cmd *cobra.Command, src *csv.Reader) (importReport, error) {
	var rep importReport

	header, err := src.Read()
	if errors.Is(err, io.EOF) {
		return rep, errors.New("file is empty")
	}
	if err != nil {
		return rep, fmt.Errorf("read header: %w", err)
	}
	fields, err := mapHeader(header, im.v.coll.Schema())
	if err != nil {
		return rep, err
	}

	pending := make([]collection.ID, 0, im.batch)
	for {
		record, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("read record: %w", err)
		}
		rep.Rows++
		line, _ := src.FieldPos(0)

		id, err := im.load(fields, record)
		if err != nil {
			rep.Invalid++
			_, _ = fmt.Fprintf(im.out, "line %d: %v\n", line, err)
			continue
		}
		if im.dryRun {
			im.v.coll.RemoveLocal(id)
			continue
		}
		pending = append(pending, id)
		if len(pending) == im.batch {
			if err := im.flush(cmd, pending, &rep); err != nil {
				return rep, err
			}
			pending = pending[:0]
		}
	}
	if len(pending) > 0 {
		if err := im.flush(cmd, pending, &rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// load adds one local row holding record. A row with invalid input is
// removed again and its errors returned.
func (im *importer) load(fields, record []string) (collection.ID, error) {
	c := im.v.coll
	id := c.AddEmptyRow()

	var errs []error
	for i, raw := range record {
		if i >= len(fields) || fields[i] == "" || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := c.Edits().Schedule(id, fields[i], raw); err != nil {
			errs = append(errs, err)
		}
	}
	row := c.Row(id)
	for _, f := range c.Schema().Fields {
		if !f.Required || f.ReadOnly {
			continue
		}
		if v := row.Value(f.Name); v == nil || v == "" {
			errs = append(errs, &collection.ValidationError{Field: f.Name, Reason: collection.ReasonRequired, Message: "required field is empty"})
		}
	}
	if len(errs) > 0 {
		c.RemoveLocal(id)
		return "", errors.Join(errs...)
	}
	return id, nil
}

// flush creates ids and drops whatever the server refused from the view.
func (im *importer) flush(cmd *cobra.Command, ids []collection.ID, rep *importReport) error {
	c := im.v.coll
	o, err := await(cmd.Context(), im.v, c.Bulk().CreateMany(ids...))
	if err != nil && o.Succeeded == 0 && o.Failed == 0 {
		return err
	}
	rep.Created += o.Succeeded

	for id, ferr := range o.Failures {
		var ve *collection.ValidationError
		if errors.As(ferr, &ve) {
			rep.Invalid++
		} else {
			rep.Failed++
		}
		_, _ = fmt.Fprintf(im.out, "row %s: %v\n", id, ferr)
	}
	c.RemoveLocal(ids...)
	return nil
}

func newImportCommand(a *app) *cobra.Command {
	var (
		batch  int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import <collection> <file.csv>",
		Short: "Create items from a CSV file",
		Long: `Create items from a CSV file. The header row names fields by name or
label. Each row is validated like manual input; invalid rows are reported
with their line number and skipped. Valid rows are created in batches, one
request per row.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch < 1 {
				return fmt.Errorf("--batch must be positive")
			}
			var in io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			v, err := a.open(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer v.close()

			im := &importer{v: v, out: cmd.ErrOrStderr(), batch: batch, dryRun: dryRun}
			rep, err := im.run(cmd, csvSource(in))
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rep)
			if err != nil {
				return err
			}
			if rep.Invalid+rep.Failed > 0 {
				return fmt.Errorf("%d of %d rows not imported", rep.Invalid+rep.Failed, rep.Rows)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", DefaultImportBatch, "rows per batch")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only, create nothing")
	return cmd
}
