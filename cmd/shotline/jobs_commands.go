package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shotline/internal/jobstore"
	"shotline/internal/wiring"
	"shotline/internal/workspace"
)

type jobOutput struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name,omitempty"`
	Source          string                 `json:"source"`
	Stack           string                 `json:"stack"`
	Status          string                 `json:"status"`
	ProgressStage   string                 `json:"progress_stage,omitempty"`
	ProgressPercent float64                `json:"progress_percent"`
	ProgressMessage string                 `json:"progress_message,omitempty"`
	ErrorKind       string                 `json:"error_kind,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Warnings        string                 `json:"warnings,omitempty"`
	LogPath         string                 `json:"log_path,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	FinishedAt      *time.Time             `json:"finished_at,omitempty"`
	Timings         []jobstore.StageTiming `json:"timings,omitempty"`
}

func toJobOutput(job *jobstore.Job) jobOutput {
	out := jobOutput{
		ID:              job.ID,
		Name:            job.Name,
		Source:          job.Source,
		Stack:           job.Stack,
		Status:          string(job.Status),
		ProgressStage:   job.ProgressStage,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		ErrorKind:       job.ErrorKind,
		ErrorMessage:    job.ErrorMessage,
		Warnings:        job.Warnings,
		LogPath:         job.LogPath,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if !job.FinishedAt.IsZero() {
		finished := job.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect and maintain recorded jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsLogsCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsCleanCommand(ctx))

	return jobsCmd
}

func withStore(ctx *commandContext, cmd *cobra.Command, fn func(*wiring.App) error) error {
	return ctx.withApp(cmd, wiring.Options{WithStore: true}, fn)
}

func parseStatuses(values []string) ([]jobstore.Status, error) {
	statuses := make([]jobstore.Status, 0, len(values))
	for _, value := range values {
		status, ok := jobstore.ParseStatus(value)
		if !ok {
			valid := make([]string, 0, len(jobstore.Statuses()))
			for _, s := range jobstore.Statuses() {
				valid = append(valid, string(s))
			}
			return nil, fmt.Errorf("unknown status %q (valid: %s)", value, strings.Join(valid, ", "))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFilter)
			if err != nil {
				return err
			}
			return withStore(ctx, cmd, func(app *wiring.App) error {
				jobs, err := app.Store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				outputs := make([]jobOutput, 0, len(jobs))
				for _, job := range jobs {
					outputs = append(outputs, toJobOutput(job))
				}
				return emit(ctx, cmd, outputs, func() error {
					out := cmd.OutOrStdout()
					if len(jobs) == 0 {
						fmt.Fprintln(out, "No jobs recorded")
						return nil
					}
					rows := make([][]string, 0, len(jobs))
					for _, job := range jobs {
						rows = append(rows, []string{
							job.ID,
							job.Stack,
							string(job.Status),
							formatPercent(job.ProgressPercent),
							job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
							truncate(job.Source, 48),
						})
					}
					fmt.Fprint(out, renderTable(
						[]string{"ID", "Stack", "Status", "Progress", "Created", "Source"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
					))
					return nil
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Only list jobs with these statuses")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job with its stage timings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, cmd, func(app *wiring.App) error {
				job, err := app.Store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				timings, err := app.Store.Timings(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				output := toJobOutput(job)
				output.Timings = timings

				return emit(ctx, cmd, output, func() error {
					out := cmd.OutOrStdout()
					finished := ""
					if output.FinishedAt != nil {
						finished = output.FinishedAt.Local().Format(time.RFC3339)
					}
					progress := ""
					if job.ProgressStage != "" {
						progress = fmt.Sprintf("%s %s", formatPercent(job.ProgressPercent), job.ProgressStage)
					}
					fmt.Fprint(out, renderDetails([][2]string{
						{"Job", job.ID},
						{"Name", job.Name},
						{"Source", job.Source},
						{"Stack", job.Stack},
						{"Status", string(job.Status)},
						{"Progress", progress},
						{"Message", job.ProgressMessage},
						{"Error", joinNonEmpty(": ", job.ErrorKind, job.ErrorMessage)},
						{"Warnings", job.Warnings},
						{"Created", job.CreatedAt.Local().Format(time.RFC3339)},
						{"Finished", finished},
						{"Log", job.LogPath},
					}))
					if len(timings) > 0 {
						rows := make([][]string, 0, len(timings))
						for _, t := range timings {
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
					return nil
				})
			})
		},
	}
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, cmd, func(app *wiring.App) error {
				stats, err := app.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				payload := make(map[string]int, len(stats))
				for status, count := range stats {
					payload[string(status)] = count
				}
				return emit(ctx, cmd, payload, func() error {
					rows := make([][]string, 0, len(stats))
					for _, status := range jobstore.Statuses() {
						if count := stats[status]; count > 0 {
							rows = append(rows, []string{string(status), strconv.Itoa(count)})
						}
					}
					if len(rows) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
					return nil
				})
			})
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepWorkspace bool

	cmd := &cobra.Command{
		Use:   "remove <id>...",
		Short: "Delete job records and their workspaces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, cmd, func(app *wiring.App) error {
				out := cmd.OutOrStdout()
				var missing []string
				for _, id := range args {
					removed, err := app.Store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if !removed {
						missing = append(missing, id)
						continue
					}
					if !keepWorkspace {
						if err := removeWorkspace(app, id); err != nil {
							return err
						}
					}
					fmt.Fprintf(out, "Removed job %s\n", id)
				}
				if len(missing) > 0 {
					return fmt.Errorf("jobs not found: %s", strings.Join(missing, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepWorkspace, "keep-workspace", false, "Keep the job's working directory")
	return cmd
}

// removeWorkspace deletes a job's working directory unless a running job
// holds its lock.
func removeWorkspace(app *wiring.App, id string) error {
	if _, err := os.Stat(workspace.JobDirs(app.Config.Paths.WorkDir, id).Root); os.IsNotExist(err) {
		return nil
	}
	ws, err := workspace.Prepare(app.Config, id)
	if err != nil {
		if errors.Is(err, workspace.ErrJobLocked) {
			return fmt.Errorf("job %s is running; workspace kept", id)
		}
		return err
	}
	return ws.Remove()
}

func newJobsCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var resetInterrupted bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale job workspaces and fail jobs interrupted by a crash",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, cmd, func(app *wiring.App) error {
				out := cmd.OutOrStdout()
				if resetInterrupted {
					n, err := app.Store.ResetInterrupted(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Marked %s as failed\n", pluralize(int(n), "interrupted job", "interrupted jobs"))
				}
				result := workspace.CleanStale(cmd.Context(), app.Config.Paths.WorkDir, olderThan, app.Logger)
				for _, path := range result.Removed {
					fmt.Fprintf(out, "Removed %s\n", path)
				}
				for _, path := range result.Skipped {
					fmt.Fprintf(out, "Skipped %s (in use)\n", path)
				}
				fmt.Fprintf(out, "Cleaned %s\n", pluralize(len(result.Removed), "workspace", "workspaces"))
				if len(result.Errors) > 0 {
					errs := make([]error, 0, len(result.Errors))
					for _, e := range result.Errors {
						errs = append(errs, fmt.Errorf("%s: %w", e.Path, e.Error))
					}
					return errors.Join(errs...)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Only remove workspaces not modified for this long")
	cmd.Flags().BoolVar(&resetInterrupted, "reset-interrupted", false, "Mark queued or running jobs as failed first")
	return cmd
}

func formatPercent(value float64) string {
	return strconv.FormatFloat(value, 'f', 0, 64) + "%"
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}
