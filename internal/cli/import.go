package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/internal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	DryRun bool
}

// RowFailure describes one CSV row that was not imported.
type RowFailure struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportReport is the output of the import command.
type ImportReport struct {
	Collection string       `json:"collection"`
	Rows       int          `json:"rows"`
	Imported   int          `json:"imported"`
	DryRun     bool         `json:"dryRun,omitempty"`
	Ignored    []string     `json:"ignored,omitempty"`
	Failures   []RowFailure `json:"failures,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import <collection> <file.csv>",
		Short: "Create records from a CSV file",
		Long: `Import validates every CSV row against the rules inferred for the
collection and creates one record per valid row. The header row names
canonical field keys; read-only and unknown columns are ignored.

Exit codes:
  0 - All rows imported (or valid, with --dry-run)
  1 - Some rows were rejected
  2 - Command error (bad config, unreadable file, unknown collection)`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, opts, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate rows without saving")
	return cmd
}

func runImport(cmd *cobra.Command, rootOpts *RootOptions, opts *ImportOptions, collection, path string) error {
	formatter := newFormatter(rootOpts, cmd)

	header, rows, err := readCSV(path)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFile, fmt.Sprintf("failed to read %s", path), err.Error())
		return WrapExitError(ExitCommandError, "failed to read csv", err)
	}

	ctx := cmd.Context()
	editor, closeFn, err := openCollection(ctx, rootOpts, collection)
	if err != nil {
		_ = formatter.Error(ErrCodeOpenFails, err.Error(), nil)
		return err
	}
	defer closeFn()

	view := editor.View()
	rules := editor.Rules()
	validator, err := internal.NewFieldValidator(view.Columns, rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build validator", err)
	}

	known := make(map[string]bool, len(view.Columns))
	for _, col := range view.Columns {
		known[col.Key] = !internal.RuleFor(rules, col.Key).ReadOnly
	}
	report := ImportReport{Collection: collection, Rows: len(rows), DryRun: opts.DryRun}
	var fields []string
	for _, key := range header {
		if editable, ok := known[key]; len(view.Columns) > 0 && (!ok || !editable) {
			report.Ignored = append(report.Ignored, key)
			continue
		}
		fields = append(fields, key)
	}
	if len(report.Ignored) > 0 {
		formatter.VerboseLog("Ignoring columns: %s", strings.Join(report.Ignored, ", "))
	}

	for i, row := range rows {
		line := i + 2
		rec := formedit.NewRecord()
		for col, key := range header {
			if col < len(row) && slices.Contains(fields, key) {
				rec.Set(key, row[col])
			}
		}

		if err := validator.ValidateRecord(rec); err != nil {
			report.Failures = append(report.Failures, RowFailure{Line: line, Message: invalidMessage(validator, rec, err)})
			continue
		}
		if opts.DryRun {
			report.Imported++
			continue
		}
		if err := createRecord(ctx, editor, rec); err != nil {
			zap.S().Warnw("import row failed", "collection", collection, "line", line, "error", err)
			report.Failures = append(report.Failures, RowFailure{Line: line, Message: err.Error()})
			continue
		}
		report.Imported++
	}

	if err := formatter.Success(report, func(w io.Writer) error {
		writeImportText(w, report)
		return nil
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	if len(report.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d rows rejected", len(report.Failures), report.Rows))
	}
	return nil
}

// createRecord drafts, fills and saves one record. A draft left behind by a
// failure is discarded so the next row starts clean.
func createRecord(ctx context.Context, editor formedit.Editor, rec formedit.Record) error {
	if out := editor.NewDraft(); !out.OK() {
		return outcomeError(out)
	}
	for _, key := range rec.Keys() {
		if out := editor.Edit(key, rec.Value(key)); !out.OK() {
			discardDraft(ctx, editor)
			return outcomeError(out)
		}
	}
	if out := editor.Save(ctx); !out.OK() {
		discardDraft(ctx, editor)
		return outcomeError(out)
	}
	return nil
}

func discardDraft(ctx context.Context, editor formedit.Editor) {
	out := editor.Delete(ctx)
	if out.Status == formedit.OutcomeConfirmRequired {
		out = editor.Delete(ctx)
	}
	if !out.OK() {
		zap.S().Warnw("failed to discard draft", "status", out.Status, "error", out.Err)
	}
}

func outcomeError(out formedit.Outcome) error {
	msg := out.Notice.Text
	if msg == "" {
		msg = string(out.Status)
	}
	if out.Err != nil {
		return fmt.Errorf("%s: %w", msg, out.Err)
	}
	return errors.New(msg)
}

func invalidMessage(validator *internal.FieldValidator, rec formedit.Record, err error) string {
	if invalid := validator.InvalidFields(rec); len(invalid) > 0 {
		return "invalid fields: " + strings.Join(invalid, ", ")
	}
	return err.Error()
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("missing header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	return header, records[1:], nil
}

func writeImportText(w io.Writer, report ImportReport) {
	verb := "imported"
	if report.DryRun {
		verb = "valid"
	}
	fmt.Fprintf(w, "%s: %d of %d rows %s\n", report.Collection, report.Imported, report.Rows, verb)
	if len(report.Ignored) > 0 {
		fmt.Fprintf(w, "ignored columns: %s\n", strings.Join(report.Ignored, ", "))
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "line %d: %s\n", f.Line, f.Message)
	}
}
