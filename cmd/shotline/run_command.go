package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shotline/internal/artifact"
	"shotline/internal/config"
	"shotline/internal/iotype"
	"shotline/internal/jobrun"
	"shotline/internal/stackexec"
	"shotline/internal/stage"
	"shotline/internal/wiring"
)

type runOutput struct {
	JobID     string                    `json:"job_id"`
	Status    string                    `json:"status"`
	Stack     string                    `json:"stack"`
	Stages    []string                  `json:"stages,omitempty"`
	Duration  string                    `json:"duration"`
	Workspace string                    `json:"workspace,omitempty"`
	LogPath   string                    `json:"log_path,omitempty"`
	Warnings  string                    `json:"warnings,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Timings   []stackexec.Timing        `json:"timings,omitempty"`
	Uploads   []artifact.Upload         `json:"uploads,omitempty"`
	Images    []artifact.GeneratedImage `json:"generated_images,omitempty"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		stackName string
		jobName   string
		jobID     string
		swaps     map[string]string
		params    map[string]string
	)

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Run a stack for one product video",
		Long: "Run a stack as a local job. <source> is a URL for stacks starting with download,\n" +
			"or a path for stacks starting with import-local or requiring a video up front.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{WithStore: true, WithRuntime: true}, func(app *wiring.App) error {
				name := strings.TrimSpace(stackName)
				if name == "" {
					name = app.Config.Stacks.Default
				}
				def, err := app.Catalog.Get(name)
				if err != nil {
					return err
				}
				source := strings.TrimSpace(args[0])
				initial, err := initialBag(def.Initial, source)
				if err != nil {
					return err
				}

				outcome, runErr := app.Jobs.Run(cmd.Context(), jobrun.Request{
					JobID:   jobID,
					Name:    jobName,
					Source:  source,
					Stack:   def.Name,
					Params:  params,
					Swaps:   swaps,
					Initial: initial,
				})
				if outcome.JobID == "" {
					return runErr
				}
				result := toRunOutput(outcome, runErr)
				if err := emit(ctx, cmd, result, func() error {
					printRunOutput(cmd, result)
					return nil
				}); err != nil {
					return err
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVarP(&stackName, "stack", "s", "", "Stack to run (defaults to [stacks] default)")
	cmd.Flags().StringVar(&jobName, "name", "", "Human-readable job name")
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job id (a UUID is generated when empty)")
	cmd.Flags().StringToStringVar(&swaps, "swap", nil, "Replace a stage: original=replacement (repeatable)")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Job parameter key=value passed to stages (repeatable)")
	return cmd
}

// initialBag seeds the bag for stacks that start from an existing video.
func initialBag(initial iotype.Set, source string) (stage.Bag, error) {
	if !initial.Has(iotype.Video) {
		return nil, nil
	}
	path, err := config.ExpandPath(source)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect video %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("video %q is a directory", path)
	}
	return stage.Bag{}.Set(iotype.Video, artifact.Video{Path: path, SizeBytes: info.Size()}), nil
}

func toRunOutput(outcome jobrun.Outcome, runErr error) runOutput {
	out := runOutput{
		JobID:     outcome.JobID,
		Status:    string(outcome.Status),
		Stack:     outcome.Stack,
		Stages:    outcome.Report.Stages,
		Duration:  outcome.Duration.Round(time.Millisecond).String(),
		Workspace: outcome.Dirs.Root,
		LogPath:   outcome.LogPath,
		Warnings:  outcome.Warnings,
		Timings:   outcome.Report.Timings,
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	if uploads, err := stage.Get[[]artifact.Upload](outcome.Report.Bag, iotype.Uploads); err == nil {
		out.Uploads = uploads
	}
	if images, err := stage.Get[[]artifact.GeneratedImage](outcome.Report.Bag, iotype.GeneratedImages); err == nil {
		out.Images = images
	}
	return out
}

func printRunOutput(cmd *cobra.Command, result runOutput) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderDetails([][2]string{
		{"Job", result.JobID},
		{"Status", result.Status},
		{"Stack", result.Stack},
		{"Duration", result.Duration},
		{"Workspace", result.Workspace},
		{"Log", result.LogPath},
		{"Warnings", result.Warnings},
	}))

	if len(result.Timings) > 0 {
		rows := make([][]string, 0, len(result.Timings))
		for _, t := range result.Timings {
			rows = append(rows, []string{
				strconv.Itoa(t.Index + 1),
				t.StageID,
				t.Duration.Round(time.Millisecond).String(),
				yesNo(t.Succeeded),
			})
		}
		fmt.Fprint(out, renderTable([]string{"#", "Stage", "Duration", "Succeeded"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
	}

	switch {
	case len(result.Uploads) > 0:
		rows := make([][]string, 0, len(result.Uploads))
		for _, u := range result.Uploads {
			rows = append(rows, []string{u.Variant, u.URL})
		}
		fmt.Fprint(out, renderTable([]string{"Variant", "URL"}, rows, nil))
	case len(result.Images) > 0:
		rows := make([][]string, 0, len(result.Images))
		for _, img := range result.Images {
			rows = append(rows, []string{img.Variant, img.Path})
		}
		fmt.Fprint(out, renderTable([]string{"Variant", "Image"}, rows, nil))
	}
}
