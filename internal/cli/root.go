package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/factory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// editorFactory builds the editor the collection commands work through. Tests replace it.
var editorFactory = factory.NewEditor

// NewRootCommand creates the root command for the formedit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "formedit",
		Short:         "Schema-less record editor",
		Long:          "Inspect, validate and bulk-load flat record collections whose field rules are inferred from the data.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return setupLogger(opts)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(NewInferCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// setupLogger logs to stderr: debug with --verbose, warnings otherwise.
func setupLogger(opts *RootOptions) error {
	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger, err := factory.NewLogger(formedit.LoggingConfig{Level: level, Format: "console"})
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func loadConfig(opts *RootOptions) (*formedit.Config, error) {
	if opts.ConfigPath == "" {
		return formedit.DefaultConfig(), nil
	}
	config, err := formedit.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return config, nil
}

// openCollection builds an editor from the configured transport and opens collection.
func openCollection(ctx context.Context, opts *RootOptions, collection string) (formedit.Editor, factory.CloseFunc, error) {
	config, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	editor, closeFn, err := editorFactory(ctx, config)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to create editor", err)
	}
	out := editor.Open(ctx, collection)
	if !out.OK() {
		closeFn()
		msg := out.Notice.Text
		if msg == "" {
			msg = fmt.Sprintf("failed to open %s", collection)
		}
		return nil, nil, WrapExitError(ExitCommandError, msg, out.Err)
	}
	return editor, closeFn, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
