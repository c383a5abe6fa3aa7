package cli

import (
	"github.com/spf13/cobra"
)

// NewGateCommand groups gate management. Completion goes through the
// engine (idempotent-once); reset is the explicit escape hatch.
func NewGateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Manage global gates",
	}
	cmd.AddCommand(newGateListCommand(opts))
	cmd.AddCommand(newGateCompleteCommand(opts))
	cmd.AddCommand(newGateResetCommand(opts))
	return cmd
}

func newGateListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			// Touch the engine so the well-known gates are registered even
			// on a fresh database.
			if _, err := app.Engine(); err != nil {
				return err
			}

			gates, err := app.Store.ListGates(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list gates", err)
			}
			if opts.Format == "json" {
				return out.Success(gates)
			}
			for _, g := range gates {
				if g.Completed {
					out.Textf("%s  COMPLETE (by %s)  %s", g.ID, g.CompletedSource, g.Title)
				} else {
					out.Textf("%s  open  %s", g.ID, g.Title)
				}
			}
			return nil
		},
	}
}

func newGateCompleteCommand(opts *RootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a gate (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			engine, err := app.Engine()
			if err != nil {
				return err
			}
			if err := engine.CompleteGate(cmd.Context(), args[0], source); err != nil {
				return WrapExitError(ExitCommandError, "complete gate", err)
			}
			out.Textf("gate %s complete", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "core:cli", "completion source recorded on the gate")
	return cmd
}

func newGateResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Reopen a completed gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.ResetGate(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "reset gate", err)
			}
			out.Textf("gate %s reopened", args[0])
			return nil
		},
	}
}
