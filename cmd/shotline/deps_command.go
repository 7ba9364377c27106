package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shotline/internal/deps"
	"shotline/internal/stage"
	"shotline/internal/wiring"
	"shotline/internal/workspace"
)

type depsReport struct {
	Binaries []deps.Status       `json:"binaries"`
	Paths    []workspace.Result  `json:"paths"`
	Stages   []stageHealthOutput `json:"stages"`
}

type stageHealthOutput struct {
	ID     string `json:"id"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries, directories and stage readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{}, func(app *wiring.App) error {
				report := depsReport{
					Binaries: deps.CheckBinaries(cmd.Context(), deps.Requirements(app.Config)),
					Paths:    workspace.CheckPaths(app.Config),
				}
				checks := make([]stage.Health, 0)
				for _, s := range app.Registry.All() {
					if s.HealthCheck == nil {
						continue
					}
					health := s.HealthCheck(cmd.Context(), app.Config)
					health.Name = s.ID
					checks = append(checks, health)
					report.Stages = append(report.Stages, stageHealthOutput{ID: s.ID, Ready: health.Ready, Detail: health.Detail})
				}

				err := emit(ctx, cmd, report, func() error {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					var lines []string
					lines = append(lines, renderSectionHeader("Binaries", colorize)...)
					lines = append(lines, binaryLines(report.Binaries, colorize)...)
					lines = append(lines, "")
					lines = append(lines, renderSectionHeader("Directories", colorize)...)
					lines = append(lines, pathLines(report.Paths, colorize)...)
					lines = append(lines, "")
					lines = append(lines, renderSectionHeader("Stages", colorize)...)
					lines = append(lines, healthLines(checks, colorize)...)
					fmt.Fprintln(out, strings.Join(lines, "\n"))
					return nil
				})
				if err != nil {
					return err
				}
				return report.failure()
			})
		},
	}
}

// failure returns an error when a required binary or directory is unusable.
// Stages that are not ready only affect stacks that use them.
func (r depsReport) failure() error {
	var problems []string
	for _, s := range deps.Missing(r.Binaries) {
		problems = append(problems, s.Name)
	}
	for _, p := range r.Paths {
		if !p.Passed {
			problems = append(problems, p.Name)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("dependency check failed: " + strings.Join(problems, ", "))
}
