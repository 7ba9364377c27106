package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shotline/internal/jobrun"
	"shotline/internal/logs"
)

func newJobsLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		raw    bool
		level  string
		stage  string
	)

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print or follow a job's log",
		Long: `Print the per-job log written when logging.job_logs is enabled.

Lines are rendered compactly by default. Use --raw for the JSON records and
--follow to keep printing while the job runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if level != "" && !logs.ValidLevel(level) {
				return fmt.Errorf("unknown level %q (valid: debug, info, warn, error)", level)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := jobrun.LogPathFor(cfg, args[0])
			if _, err := os.Stat(path); err != nil && !follow {
				if os.IsNotExist(err) {
					return fmt.Errorf("no log for job %s (is logging.job_logs enabled?)", args[0])
				}
				return err
			}

			filter := logs.Filter{MinLevel: level, Stage: strings.TrimSpace(stage)}
			emitLine := linePrinter(cmd.OutOrStdout(), filter, raw)

			offset := int64(-1)
			limit := lines
			if limit <= 0 {
				// Whole file.
				offset, limit = 0, 0
			}
			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: offset, Limit: limit})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				if err := emitLine(line); err != nil {
					return err
				}
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, result.Offset, emitLine)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Only print the last N lines (0 prints the whole log)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records unchanged")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level to print (debug, info, warn, error)")
	cmd.Flags().StringVar(&stage, "stage", "", "Only print lines logged by this stage")
	return cmd
}

func linePrinter(w io.Writer, filter logs.Filter, raw bool) func(string) error {
	return func(line string) error {
		entry, ok := logs.ParseEntry(line)
		if ok && !filter.Match(entry) {
			return nil
		}
		if ok && !raw {
			line = entry.Format()
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
}
