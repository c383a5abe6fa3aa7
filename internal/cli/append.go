package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/openretro/questlog/internal/event"
)

// NewAppendCommand appends one canonical event to the log. The event is
// not applied until the next tick.
func NewAppendCommand(opts *RootOptions) *cobra.Command {
	var (
		source   string
		username string
		typ      string
		payload  string
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a canonical event to the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)

			var p map[string]any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &p); err != nil {
					return WrapExitError(ExitCommandError, "parse payload", err)
				}
			}

			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			e := event.Event{
				TS:       time.Now(),
				Source:   source,
				Username: username,
				Type:     typ,
				Payload:  p,
			}.Normalize()
			if err := app.Log.Append(e); err != nil {
				return WrapExitError(ExitCommandError, "append event", err)
			}

			if opts.Format == "json" {
				return out.Success(e)
			}
			out.Textf("appended %s for %s from %s", e.Type, e.Username, e.Source)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "producer lane id (core:*, adapter:*, toybox:*)")
	cmd.Flags().StringVar(&username, "username", "", "username the event belongs to")
	cmd.Flags().StringVar(&typ, "type", "", "event type (UPPER_SNAKE)")
	cmd.Flags().StringVar(&payload, "payload", "", "payload JSON object")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}
