package cli

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "schema <collection>",
		Short:         "Print the JSON schema inferred for a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			editor, closeFn, err := openCollection(cmd.Context(), rootOpts, args[0])
			if err != nil {
				_ = formatter.Error(ErrCodeOpenFails, err.Error(), nil)
				return err
			}
			defer closeFn()

			schema := editor.Schema()
			err = formatter.Success(schema, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(schema)
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to write schema", err)
			}
			return nil
		},
	}
}
