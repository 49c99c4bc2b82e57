package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lychee-technology/formedit"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [collection]",
		Short: "List collections, or the records of one collection",
		Long: `Without arguments, list the configured collections.
With a collection name, fetch it and print one row per record in column order.

Examples:
  formedit list
  formedit list servers --config formedit.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListCollections(cmd, rootOpts)
			}
			return runListRecords(cmd, rootOpts, args[0])
		},
	}
}

func runListCollections(cmd *cobra.Command, rootOpts *RootOptions) error {
	formatter := newFormatter(rootOpts, cmd)
	config, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	editor, closeFn, err := editorFactory(cmd.Context(), config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create editor", err)
	}
	defer closeFn()

	names := editor.Collections()
	if err := formatter.Success(map[string]any{"collections": names}, func(w io.Writer) error {
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
		return nil
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return nil
}

func runListRecords(cmd *cobra.Command, rootOpts *RootOptions, collection string) error {
	formatter := newFormatter(rootOpts, cmd)
	editor, closeFn, err := openCollection(cmd.Context(), rootOpts, collection)
	if err != nil {
		_ = formatter.Error(ErrCodeOpenFails, err.Error(), nil)
		return err
	}
	defer closeFn()

	view := editor.View()
	if err := formatter.Success(view, func(w io.Writer) error {
		writeRowsText(w, view)
		return nil
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	return nil
}

func writeRowsText(w io.Writer, view formedit.View) {
	fmt.Fprintf(w, "%s (%d records)\n", view.Collection, len(view.Rows))
	keys := make([]string, 0, len(view.Columns))
	for _, col := range view.Columns {
		keys = append(keys, col.Key)
	}
	fmt.Fprintln(w, strings.Join(keys, " | "))
	for _, row := range view.Rows {
		fmt.Fprintln(w, strings.Join(row.Values, " | "))
	}
}
