package cli

import (
	"github.com/spf13/cobra"
)

// NewLogCommand groups event log maintenance operations.
func NewLogCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and archive the event log",
	}
	cmd.AddCommand(newLogCountCommand(opts))
	cmd.AddCommand(newLogArchiveCommand(opts))
	return cmd
}

func newLogCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count lines in the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Log.CountLines()
			if err != nil {
				return WrapExitError(ExitCommandError, "count log lines", err)
			}
			if opts.Format == "json" {
				return out.Success(map[string]any{"path": app.Log.Path(), "lines": n})
			}
			out.Textf("%s: %d lines", app.Log.Path(), n)
			return nil
		},
	}
}

func newLogArchiveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Write a compressed snapshot of the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			path, err := app.Log.Archive()
			if err != nil {
				return WrapExitError(ExitCommandError, "archive log", err)
			}
			if opts.Format == "json" {
				return out.Success(map[string]any{"archive": path})
			}
			out.Textf("archived to %s", path)
			return nil
		},
	}
}
