package cli

import (
	"github.com/spf13/cobra"
)

// NewTickCommand ingests pending events from the log.
func NewTickCommand(opts *RootOptions) *cobra.Command {
	var drain bool

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Ingest pending events and run the rule pass",
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

			consumed, applied := 0, 0
			var fired []string
			for {
				res, err := engine.Tick(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "tick", err)
				}
				consumed += res.Consumed
				applied += res.Applied
				fired = append(fired, res.RulesFired...)
				for _, note := range res.Notes {
					out.VerboseLog("note: %s", note)
				}
				if !drain || res.Consumed == 0 {
					break
				}
			}

			if opts.Format == "json" {
				return out.Success(map[string]any{
					"consumed":    consumed,
					"applied":     applied,
					"rules_fired": fired,
				})
			}
			out.Textf("consumed %d event(s), applied %d, rules fired: %d", consumed, applied, len(fired))
			return nil
		},
	}

	cmd.Flags().BoolVar(&drain, "drain", false, "keep ticking until the log is exhausted")
	return cmd
}
