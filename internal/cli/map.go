package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openretro/questlog/internal/maprun"
)

// NewMapCommand groups the map runtime operations. Every subcommand except
// status appends exactly one event; rewards realize on the next tick.
func NewMapCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Drive the map runtime",
	}

	cmd.AddCommand(newMapStatusCommand(opts))
	cmd.AddCommand(newMapEnterCommand(opts))
	cmd.AddCommand(newMapMoveCommand(opts))
	cmd.AddCommand(newMapInspectCommand(opts))
	cmd.AddCommand(newMapInteractCommand(opts))
	cmd.AddCommand(newMapCompleteCommand(opts))
	cmd.AddCommand(newMapTickCommand(opts))

	return cmd
}

func withRuntime(opts *RootOptions, fn func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		out := formatter(cmd, opts)
		app, err := openApp(opts)
		if err != nil {
			return err
		}
		defer app.Close()

		rt, err := app.Runtime()
		if err != nil {
			return err
		}
		return fn(cmd, rt, args, out)
	}
}

func printMapStatus(out *OutputFormatter, opts *RootOptions, s maprun.Status) error {
	if opts.Format == "json" {
		return out.Success(s)
	}
	if !s.Entered {
		out.Textf("%s is not on the map", s.Username)
		return nil
	}
	out.Textf("%s at %s (%s, chunk %s, z %d)", s.Username, s.PlaceID, s.Label, s.ChunkID, s.Z)
	out.Textf("  tick %d, npc phase %d/8, world phase %d/16", s.TickCounter, s.NPCPhase, s.WorldPhase)
	return nil
}

func newMapStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <username>",
		Short: "Show a user's map position (emits nothing)",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error {
			s, err := rt.Status(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "map status", err)
			}
			return printMapStatus(out, opts, s)
		}),
	}
}

func newMapEnterCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enter <username> <place>",
		Short: "Enter a seed place",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error {
			s, err := rt.Enter(cmd.Context(), args[0], args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "enter", err)
			}
			return printMapStatus(out, opts, s)
		}),
	}
}

func newMapMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <username> <place>",
		Short: "Traverse one edge",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error {
			res, err := rt.Move(cmd.Context(), args[0], args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "move", err)
			}
			if opts.Format == "json" {
				return out.Success(res)
			}
			if res.Blocked != "" {
				out.Textf("move %s -> %s blocked: %s", res.From, res.To, res.Blocked)
				return nil
			}
			out.Textf("moved %s -> %s (%s, cost %d)", res.From, res.To, res.Mode, res.TerrainCost)
			return nil
		}),
	}
}

func newMapInspectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <username>",
		Short: "Inspect the current place",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error {
			insp, err := rt.Inspect(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "inspect", err)
			}
			if opts.Format == "json" {
				return out.Success(insp)
			}
			out.Textf("%s (%s, chunk %s, z %d)", insp.PlaceID, insp.Label, insp.ChunkID, insp.Z)
			out.Textf("  links: %v", insp.Links)
			if len(insp.Hazards) > 0 {
				out.Textf("  hazards: %v", insp.Hazards)
			}
			if len(insp.QuestIDs) > 0 {
				out.Textf("  quests: %v", insp.QuestIDs)
			}
			if len(insp.InteractionPoints) > 0 {
				out.Textf("  interaction points: %v", insp.InteractionPoints)
			}
			return nil
		}),
	}
}

func newMapInteractCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "interact <username> <point>",
		Short: "Use an interaction point at the current place",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error {
			if err := rt.Interact(cmd.Context(), args[0], args[1]); err != nil {
				return WrapExitError(ExitCommandError, "interact", err)
			}
			out.Textf("interacted with %s", args[1])
			return nil
		}),
	}
}

func newMapCompleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <username> <quest>",
		Short: "Complete a quest offered at the current place",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error {
			if err := rt.Complete(cmd.Context(), args[0], args[1]); err != nil {
				return WrapExitError(ExitCommandError, "complete", err)
			}
			out.Textf("completed %s", args[1])
			return nil
		}),
	}
}

func newMapTickCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick <username> [steps]",
		Short: "Advance the user's world clock",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withRuntime(opts, func(cmd *cobra.Command, rt *maprun.Runtime, args []string, out *OutputFormatter) error {
			steps := int64(1)
			if len(args) == 2 {
				n, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return WrapExitError(ExitCommandError, "parse steps", err)
				}
				steps = n
			}
			s, err := rt.Tick(cmd.Context(), args[0], steps)
			if err != nil {
				return WrapExitError(ExitCommandError, "map tick", err)
			}
			return printMapStatus(out, opts, s)
		}),
	}
}
