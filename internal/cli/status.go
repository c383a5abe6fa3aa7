package cli

import (
	"github.com/spf13/cobra"
)

// NewStatusCommand reports a user's progression state.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <username>",
		Short: "Show a user's progression state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			username := args[0]

			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			engine, err := app.Engine()
			if err != nil {
				return err
			}

			st, err := engine.UserState(cmd.Context(), username)
			if err != nil {
				return WrapExitError(ExitCommandError, "load state", err)
			}
			canProceed, err := engine.CanProceed(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "check gate", err)
			}

			if opts.Format == "json" {
				return out.Success(map[string]any{
					"state":       st,
					"can_proceed": canProceed,
				})
			}

			out.Textf("%s  level %d (achievement level %d)", st.Username, st.Progress.Level, st.Progress.AchievementLevel)
			out.Textf("  xp %d  hp %d  gold %d", st.Stats.XP, st.Stats.HP, st.Stats.Gold)
			if st.Progress.Location.GridID != "" {
				out.Textf("  at %s", st.Progress.Location.GridID)
			}
			for _, a := range st.Progress.Achievements {
				out.Textf("  achievement: %s", a)
			}
			for _, tok := range st.UnlockTokens {
				out.Textf("  token: %s (%s)", tok.ID, tok.Source)
			}
			out.Textf("  can_proceed: %v", canProceed)
			return nil
		},
	}
	return cmd
}
