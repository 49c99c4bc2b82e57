package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/internal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// FieldReport is one inferred field in column order.
type FieldReport struct {
	Key   string             `json:"key"`
	Label string             `json:"label"`
	Rule  formedit.FieldRule `json:"rule"`
}

// InferReport is the output of the infer command.
type InferReport struct {
	Collection string        `json:"collection"`
	Title      string        `json:"title,omitempty"`
	Records    int           `json:"records"`
	Fields     []FieldReport `json:"fields"`
}

// NewInferCommand creates the infer command.
func NewInferCommand(rootOpts *RootOptions) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "infer <file.json>",
		Short: "Infer field rules from a collection dump",
		Long: `Infer reads a collection payload (a bare array, or an object with an
"items" array) and prints the rule inferred for every field of the first record.

Examples:
  formedit infer servers.json
  formedit infer dump.json --collection servers --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(cmd, rootOpts, args[0], collection)
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "collection whose key mapping applies (default: file name)")
	return cmd
}

func runInfer(cmd *cobra.Command, rootOpts *RootOptions, path, collection string) error {
	formatter := newFormatter(rootOpts, cmd)

	config, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	if collection == "" {
		collection = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFile, fmt.Sprintf("failed to read %s", path), err.Error())
		return WrapExitError(ExitCommandError, "failed to read file", err)
	}
	page, err := formedit.DecodeCollectionPage(data)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFile, fmt.Sprintf("failed to decode %s", path), err.Error())
		return WrapExitError(ExitCommandError, "failed to decode file", err)
	}

	mapper, err := internal.NewKeyMapper(config.Mapping)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid key mapping", err)
	}
	records := make([]formedit.Record, 0, len(page.Items))
	for _, raw := range page.Items {
		records = append(records, mapper.Normalize(collection, raw))
	}
	rules := internal.NewRuleInferencer(config.Inference).Infer(records)

	report := InferReport{
		Collection: collection,
		Title:      mapper.NormalizeMeta(page.Meta).Value("title"),
		Records:    len(records),
		Fields:     []FieldReport{},
	}
	if len(records) > 0 {
		for _, key := range records[0].Keys() {
			report.Fields = append(report.Fields, FieldReport{
				Key:   key,
				Label: internal.FieldLabel(key),
				Rule:  rules[key],
			})
		}
	}
	zap.S().Debugw("inferred collection", "collection", collection, "records", report.Records, "fields", len(report.Fields))
	formatter.VerboseLog("Inferred %d fields from %d records", len(report.Fields), report.Records)

	if err := formatter.Success(report, func(w io.Writer) error {
		writeInferText(w, report)
		return nil
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return nil
}

func writeInferText(w io.Writer, report InferReport) {
	fmt.Fprintf(w, "collection: %s\n", report.Collection)
	if report.Title != "" {
		fmt.Fprintf(w, "title: %s\n", report.Title)
	}
	fmt.Fprintf(w, "records: %d\n", report.Records)
	for _, f := range report.Fields {
		fmt.Fprintf(w, "%s (%s): %s\n", f.Key, f.Label, describeRule(f.Rule))
	}
}

func describeRule(rule formedit.FieldRule) string {
	parts := []string{string(rule.Type)}
	if rule.ReadOnly {
		parts = append(parts, "read-only")
	}
	if rule.Required {
		parts = append(parts, "required")
	}
	desc := strings.Join(parts, ", ")
	if len(rule.Options) > 0 {
		desc += "; options: " + strings.Join(rule.Options, ", ")
	}
	return desc
}
