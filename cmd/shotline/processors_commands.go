package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shotline/internal/registry"
	"shotline/internal/wiring"
)

func newProcessorsCommand(ctx *commandContext) *cobra.Command {
	processorsCmd := &cobra.Command{
		Use:     "processors",
		Aliases: []string{"stages"},
		Short:   "Inspect registered stages",
	}

	processorsCmd.AddCommand(newProcessorsListCommand(ctx))
	processorsCmd.AddCommand(newProcessorsSwappableCommand(ctx))

	return processorsCmd
}

func newProcessorsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered stage with its IO contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{}, func(app *wiring.App) error {
				summary := app.Registry.Summary()
				return emit(ctx, cmd, summary, func() error {
					fmt.Fprint(cmd.OutOrStdout(), renderTable(
						[]string{"Stage", "Name", "Requires", "Produces", "Swaps With"},
						processorRows(summary),
						nil,
					))
					return nil
				})
			})
		},
	}
}

func processorRows(summary []registry.Row) [][]string {
	rows := make([][]string, 0, len(summary))
	for _, row := range summary {
		rows = append(rows, []string{
			row.ID,
			row.Name,
			dashIfEmpty(strings.Join(row.Requires, ", ")),
			dashIfEmpty(strings.Join(row.Produces, ", ")),
			dashIfEmpty(strings.Join(row.SwapsWith, ", ")),
		})
	}
	return rows
}

func newProcessorsSwappableCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "swappable <stage> [other]",
		Short: "Check whether two stages are interchangeable, or list the alternatives of one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{}, func(app *wiring.App) error {
				if _, err := app.Registry.Lookup(args[0]); err != nil {
					return err
				}
				if len(args) == 2 {
					if _, err := app.Registry.Lookup(args[1]); err != nil {
						return err
					}
					ok := app.Registry.Swappable(args[0], args[1])
					payload := map[string]any{"a": args[0], "b": args[1], "swappable": ok}
					return emit(ctx, cmd, payload, func() error {
						fmt.Fprintf(cmd.OutOrStdout(), "%s <-> %s: %s\n", args[0], args[1], yesNo(ok))
						return nil
					})
				}

				alternatives := app.Registry.Alternatives(args[0])
				ids := make([]string, 0, len(alternatives))
				for _, alt := range alternatives {
					ids = append(ids, alt.ID)
				}
				payload := map[string]any{"stage": args[0], "alternatives": ids}
				return emit(ctx, cmd, payload, func() error {
					out := cmd.OutOrStdout()
					if len(ids) == 0 {
						fmt.Fprintf(out, "%s has no interchangeable stages\n", args[0])
						return nil
					}
					fmt.Fprintf(out, "%s can be replaced by: %s\n", args[0], strings.Join(ids, ", "))
					return nil
				})
			})
		},
	}
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
