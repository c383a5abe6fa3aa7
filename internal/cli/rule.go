package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// NewRuleCommand groups rule management.
func NewRuleCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage IF/THEN rules",
	}
	cmd.AddCommand(newRuleAddCommand(opts))
	cmd.AddCommand(newRuleListCommand(opts))
	cmd.AddCommand(newRuleEnableCommand(opts, true))
	cmd.AddCommand(newRuleEnableCommand(opts, false))
	return cmd
}

func newRuleAddCommand(opts *RootOptions) *cobra.Command {
	var ifExpr, thenExpr, source string

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add or replace a rule",
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
			if err := engine.AddRule(cmd.Context(), args[0], ifExpr, thenExpr, source); err != nil {
				return WrapExitError(ExitCommandError, "add rule", err)
			}
			out.Textf("rule %s installed", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&ifExpr, "if", "", "requirement expression (and-joined clauses; empty matches always)")
	cmd.Flags().StringVar(&thenExpr, "then", "", "semicolon-separated actions")
	cmd.Flags().StringVar(&source, "source", "cli", "who installed the rule")
	_ = cmd.MarkFlagRequired("then")

	return cmd
}

func newRuleListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			rules, err := app.Store.ListRules(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list rules", err)
			}
			if opts.Format == "json" {
				return out.Success(rules)
			}
			for _, r := range rules {
				state := "enabled"
				if !r.Enabled {
					state = "disabled"
				}
				out.Textf("%s [%s] if %q then %q (source %s)", r.ID, state, r.If, r.Then, r.Source)
			}
			if len(rules) == 0 {
				out.Textf("no rules installed")
			}
			return nil
		},
	}
}

func newRuleEnableCommand(opts *RootOptions, enable bool) *cobra.Command {
	use, short := "enable <id>", "Enable a rule"
	if !enable {
		use, short = "disable <id>", "Disable a rule"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			app, err := openApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.SetRuleEnabled(cmd.Context(), args[0], enable, time.Now()); err != nil {
				return WrapExitError(ExitCommandError, "update rule", err)
			}
			out.Textf("rule %s %s", args[0], map[bool]string{true: "enabled", false: "disabled"}[enable])
			return nil
		},
	}
}
