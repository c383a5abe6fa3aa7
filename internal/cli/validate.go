package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openretro/questlog/internal/contract"
	"github.com/openretro/questlog/internal/event"
	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/lens"
	"github.com/openretro/questlog/internal/maprun"
)

// NewValidateCommand checks the offline inputs: the seed graph loads, every
// configured lens slice honors its contract, and (with --log) every log line
// decodes and untrusted lines satisfy the adapter contract.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the seed graph, lens slices, and optionally an event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)

			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			bad := 0

			graph, err := maprun.Load(app.Config.Paths.SeedFile)
			if err != nil {
				bad++
				out.Textf("seed: %v", err)
			} else {
				out.Textf("seed: %d place(s) ok", graph.Len())
				for _, slice := range app.Config.Lens.Slices {
					svc := lens.New(app.Store, graph, slice)
					if ok, detail := svc.Validate(); !ok {
						bad++
						out.Textf("slice %s: %s", slice.ID, detail)
					} else {
						out.Textf("slice %s: ok", slice.ID)
					}
				}
			}

			validator, err := contract.New()
			if err != nil {
				return WrapExitError(ExitCommandError, "compile contract", err)
			}

			lines := 0
			if logPath != "" {
				log := eventlog.Open(logPath)
				var offset int64
				for {
					batch, err := log.ReadBatch(offset, 1024)
					if err != nil {
						return WrapExitError(ExitCommandError, "read log", err)
					}
					if len(batch.Lines) == 0 && batch.NextOffset == offset {
						break
					}
					for _, raw := range batch.Lines {
						lines++
						e, err := event.DecodeLine(raw)
						if err != nil {
							bad++
							out.Textf("line %d: malformed: %v", lines, err)
							continue
						}
						if e.Lane() == event.LaneUntrusted {
							if err := validator.Validate(e); err != nil {
								bad++
								out.Textf("line %d: %v", lines, err)
							}
						}
					}
					offset = batch.NextOffset
				}
			}

			if opts.Format == "json" {
				if err := out.Success(map[string]any{
					"contract_version": validator.Version(),
					"lines":            lines,
					"invalid":          bad,
				}); err != nil {
					return err
				}
			} else {
				out.Textf("%d line(s) checked against contract %s, %d problem(s)", lines, validator.Version(), bad)
			}

			if bad > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d validation problem(s)", bad))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logPath, "log", "", "event log to check against the adapter contract")

	return cmd
}
