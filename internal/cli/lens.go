package cli

import (
	"github.com/spf13/cobra"
)

// NewLensCommand groups the world lens operations.
func NewLensCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lens",
		Short: "Gate the experimental world lens",
	}
	cmd.AddCommand(newLensStatusCommand(opts))
	cmd.AddCommand(newLensToggleCommand(opts, true))
	cmd.AddCommand(newLensToggleCommand(opts, false))
	return cmd
}

func newLensStatusCommand(opts *RootOptions) *cobra.Command {
	var sliceID string

	cmd := &cobra.Command{
		Use:   "status <username>",
		Short: "Report lens readiness for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			username := args[0]

			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			svc, err := app.Lens(sliceID)
			if err != nil {
				return err
			}
			rt, err := app.Runtime()
			if err != nil {
				return err
			}
			engine, err := app.Engine()
			if err != nil {
				return err
			}

			mapStatus, err := rt.Status(cmd.Context(), username)
			if err != nil {
				return WrapExitError(ExitCommandError, "map status", err)
			}
			ready, err := engine.CanProceed(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "check gate", err)
			}

			st, err := svc.Status(cmd.Context(), username, mapStatus, ready)
			if err != nil {
				return WrapExitError(ExitCommandError, "lens status", err)
			}

			if opts.Format == "json" {
				return out.Success(st)
			}
			if st.Ready {
				out.Textf("lens %s ready for %s at %s", st.SliceID, st.Username, st.CurrentPlaceID)
				return nil
			}
			out.Textf("lens %s blocked for %s: %s", st.SliceID, st.Username, st.BlockingReason)
			if st.Detail != "" {
				out.Textf("  %s", st.Detail)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sliceID, "slice", "", "configured slice id")
	_ = cmd.MarkFlagRequired("slice")
	return cmd
}

func newLensToggleCommand(opts *RootOptions, enable bool) *cobra.Command {
	use, short := "enable", "Enable a lens slice"
	if !enable {
		use, short = "disable", "Disable a lens slice"
	}

	var sliceID, by string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			svc, err := app.Lens(sliceID)
			if err != nil {
				return err
			}
			if enable {
				err = svc.Enable(cmd.Context(), by)
			} else {
				err = svc.Disable(cmd.Context(), by)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "update lens flag", err)
			}
			out.Textf("lens %s %sd by %s", sliceID, use, by)
			return nil
		},
	}

	cmd.Flags().StringVar(&sliceID, "slice", "", "configured slice id")
	cmd.Flags().StringVar(&by, "by", "cli", "who flipped the flag")
	_ = cmd.MarkFlagRequired("slice")
	return cmd
}
