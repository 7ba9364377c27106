package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shotline/internal/config"
	"shotline/internal/stack"
	"shotline/internal/stackexec"
	"shotline/internal/wiring"
)

type stackOutput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Initial     []string `json:"initial,omitempty"`
	Stages      []string `json:"stages"`
}

type planStepOutput struct {
	Index       int      `json:"index"`
	StageID     string   `json:"stage_id"`
	SwappedFrom string   `json:"swapped_from,omitempty"`
	Requires    []string `json:"requires"`
	Produces    []string `json:"produces"`
}

type stackValidation struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func newStacksCommand(ctx *commandContext) *cobra.Command {
	stacksCmd := &cobra.Command{
		Use:     "stacks",
		Aliases: []string{"stack"},
		Short:   "Inspect stack definitions",
	}

	stacksCmd.AddCommand(newStacksListCommand(ctx))
	stacksCmd.AddCommand(newStacksShowCommand(ctx))
	stacksCmd.AddCommand(newStacksValidateCommand(ctx))

	return stacksCmd
}

func toStackOutput(def stack.Definition) stackOutput {
	return stackOutput{
		Name:        def.Name,
		Description: def.Description,
		Initial:     def.Initial.Strings(),
		Stages:      def.StageIDs(),
	}
}

func newStacksListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available stacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{}, func(app *wiring.App) error {
				defs := app.Catalog.All()
				outputs := make([]stackOutput, 0, len(defs))
				for _, def := range defs {
					outputs = append(outputs, toStackOutput(def))
				}
				return emit(ctx, cmd, outputs, func() error {
					rows := make([][]string, 0, len(defs))
					for _, def := range defs {
						name := def.Name
						if def.Name == app.Config.Stacks.Default {
							name += " (default)"
						}
						rows = append(rows, []string{name, def.String(), def.Description})
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Stack", "Stages", "Description"}, rows, nil))
					return nil
				})
			})
		},
	}
}

func newStacksShowCommand(ctx *commandContext) *cobra.Command {
	var swaps map[string]string

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show the effective stage plan of a stack",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{}, func(app *wiring.App) error {
				name := app.Config.Stacks.Default
				if len(args) == 1 {
					name = args[0]
				}
				def, err := app.Catalog.Get(name)
				if err != nil {
					return err
				}
				steps, err := app.Engine.Plan(def, stackexec.RuntimeConfig{Swaps: swaps})
				if err != nil {
					return err
				}
				plan := planOutput(steps)
				payload := struct {
					stackOutput
					Plan []planStepOutput `json:"plan"`
				}{toStackOutput(def), plan}
				return emit(ctx, cmd, payload, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprint(out, renderDetails([][2]string{
						{"Stack", def.Name},
						{"Description", def.Description},
						{"Initial", def.Initial.String()},
					}))
					rows := make([][]string, 0, len(plan))
					for _, step := range plan {
						id := step.StageID
						if step.SwappedFrom != "" {
							id = fmt.Sprintf("%s (replaces %s)", step.StageID, step.SwappedFrom)
						}
						rows = append(rows, []string{
							strconv.Itoa(step.Index + 1),
							id,
							strings.Join(step.Requires, ", "),
							strings.Join(step.Produces, ", "),
						})
					}
					fmt.Fprint(out, renderTable([]string{"#", "Stage", "Requires", "Produces"}, rows, []columnAlignment{alignRight}))
					return nil
				})
			})
		},
	}

	cmd.Flags().StringToStringVar(&swaps, "swap", nil, "Replace a stage: original=replacement (repeatable)")
	return cmd
}

func planOutput(steps []stackexec.Step) []planStepOutput {
	out := make([]planStepOutput, 0, len(steps))
	for _, step := range steps {
		out = append(out, planStepOutput{
			Index:       step.Index,
			StageID:     step.Stage.ID,
			SwappedFrom: step.SwappedFrom,
			Requires:    step.Stage.Requires.Strings(),
			Produces:    step.Stage.Produces.Strings(),
		})
	}
	return out
}

func newStacksValidateCommand(ctx *commandContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate [name...]",
		Short: "Check that stacks only use registered stages with satisfied inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{}, func(app *wiring.App) error {
				catalog := app.Catalog
				names := args
				if strings.TrimSpace(file) != "" {
					path, err := config.ExpandPath(file)
					if err != nil {
						return err
					}
					if _, err := os.Stat(path); err != nil {
						return fmt.Errorf("stack file: %w", err)
					}
					catalog = stack.NewCatalog()
					if _, err := catalog.LoadFile(path, app.Registry); err != nil {
						return err
					}
				}
				if len(names) == 0 {
					names = catalog.Names()
				}

				results := make([]stackValidation, 0, len(names))
				failed := 0
				for _, name := range names {
					result := stackValidation{Name: name, Valid: true}
					def, err := catalog.Get(name)
					if err == nil {
						err = app.Engine.Validate(def)
					}
					if err != nil {
						result.Valid = false
						result.Error = err.Error()
						failed++
					}
					results = append(results, result)
				}

				err := emit(ctx, cmd, results, func() error {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					for _, r := range results {
						if r.Valid {
							fmt.Fprintln(out, renderStatusLine(r.Name, statusOK, "valid", colorize))
							continue
						}
						fmt.Fprintln(out, renderStatusLine(r.Name, statusError, r.Error, colorize))
					}
					return nil
				})
				if err != nil {
					return err
				}
				if failed > 0 {
					return errors.New(pluralize(failed, "stack", "stacks") + " failed validation")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Validate the stacks declared in this YAML file instead of the catalog")
	return cmd
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return fmt.Sprintf("%d %s", n, plural)
}
