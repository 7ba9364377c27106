package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shotline/internal/artifact"
	"shotline/internal/config"
	"shotline/internal/framescore"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/scoring"
	"shotline/internal/stage"
	"shotline/internal/wiring"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

type framesScoreOutput struct {
	Stage      string                   `json:"stage"`
	Scored     []framescore.ScoredFrame `json:"scored,omitempty"`
	Candidates []framescore.ScoredFrame `json:"candidates"`
	Report     artifact.StageReport     `json:"report"`
}

func newFramesCommand(ctx *commandContext) *cobra.Command {
	framesCmd := &cobra.Command{
		Use:   "frames",
		Short: "Work with extracted frames",
	}
	framesCmd.AddCommand(newFramesScoreCommand(ctx))
	return framesCmd
}

func newFramesScoreCommand(ctx *commandContext) *cobra.Command {
	var (
		fps          float64
		perSecond    bool
		showAll      bool
		topK         int
		minGap       float64
		alpha        float64
		minSharpness float64
	)

	cmd := &cobra.Command{
		Use:   "score <directory>",
		Short: "Score a directory of frames and print the selected candidates",
		Long: "Score every image in a directory as if it were a frame sequence sampled at --fps.\n" +
			"Files are ordered by name. Flags left unset fall back to the [scoring] configuration.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, wiring.Options{}, func(app *wiring.App) error {
				dir, err := config.ExpandPath(args[0])
				if err != nil {
					return err
				}
				if fps <= 0 {
					return fmt.Errorf("--fps must be positive, got %v", fps)
				}
				frames, err := listFrames(dir, fps)
				if err != nil {
					return err
				}

				scorer := scoring.NewScorer(app.Config, app.Logger)
				var st stage.Stage
				var opts stage.Options
				if perSecond {
					o := scorer.DefaultPerSecondOptions()
					if cmd.Flags().Changed("alpha") {
						o.Alpha = alpha
					}
					if cmd.Flags().Changed("min-sharpness") {
						o.MinSharpness = minSharpness
					}
					st, opts = scorer.PerSecondStage(), o
				} else {
					o := scorer.DefaultOptions()
					if cmd.Flags().Changed("alpha") {
						o.Alpha = alpha
					}
					if cmd.Flags().Changed("top-k") {
						o.TopK = topK
					}
					if cmd.Flags().Changed("min-gap") {
						o.MinGapSeconds = minGap
					}
					st, opts = scorer.Stage(), o
				}

				ec := &stage.ExecContext{
					JobID:  "frames-score",
					Job:    stage.Job{ID: "frames-score", Source: dir},
					Config: app.Config,
					Dirs:   stage.Dirs{Root: dir, Frames: dir},
					Logger: logging.NewComponentLogger(app.Logger, "frames"),
				}
				bag := stage.Bag{}.Set(iotype.Frames, frames)
				data, err := st.Execute(cmd.Context(), ec, bag, opts).Get()
				if err != nil {
					return err
				}
				result := framesScoreOutput{Stage: st.ID}
				if result.Candidates, err = stage.Get[[]framescore.ScoredFrame](data, iotype.Candidates); err != nil {
					return err
				}
				if showAll {
					if result.Scored, err = stage.Get[[]framescore.ScoredFrame](data, iotype.ScoredFrames); err != nil {
						return err
					}
				}
				if report, ok := data.Metadata()[st.ID].(artifact.StageReport); ok {
					result.Report = report
				}

				return emit(ctx, cmd, result, func() error {
					out := cmd.OutOrStdout()
					if showAll {
						fmt.Fprintln(out, "Scored frames")
						fmt.Fprint(out, renderTable(frameHeaders(), frameRows(result.Scored), frameAligns()))
					}
					fmt.Fprintf(out, "Candidates (%s, %s)\n", st.ID, result.Report.Summary())
					fmt.Fprint(out, renderTable(frameHeaders(), frameRows(result.Candidates), frameAligns()))
					return nil
				})
			})
		},
	}

	cmd.Flags().Float64Var(&fps, "fps", 1, "Sampling rate the frames were extracted at")
	cmd.Flags().BoolVar(&perSecond, "per-second", false, "Keep the best frame of every second instead of the top-k")
	cmd.Flags().BoolVar(&showAll, "all", false, "Also print every scored frame")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of candidates to keep")
	cmd.Flags().Float64Var(&minGap, "min-gap", 0, "Minimum seconds between candidates")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Motion penalty weight")
	cmd.Flags().Float64Var(&minSharpness, "min-sharpness", 0, "Sharpness floor for --per-second")
	return cmd
}

// listFrames returns the images in dir ordered by file name with timestamps
// derived from their position and fps.
func listFrames(dir string, fps float64) ([]framescore.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(names)
	frames := make([]framescore.Frame, len(names))
	for i, name := range names {
		frames[i] = framescore.Frame{
			ID:        strings.TrimSuffix(name, filepath.Ext(name)),
			Path:      filepath.Join(dir, name),
			Timestamp: float64(i) / fps,
			Index:     i,
		}
	}
	return frames, nil
}

func frameHeaders() []string {
	return []string{"Frame", "Time", "Sharpness", "Motion", "Score"}
}

func frameAligns() []columnAlignment {
	return []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}
}

func frameRows(frames []framescore.ScoredFrame) [][]string {
	rows := make([][]string, 0, len(frames))
	for _, f := range frames {
		rows = append(rows, []string{
			f.FrameID,
			strconv.FormatFloat(f.Timestamp, 'f', 3, 64) + "s",
			strconv.FormatFloat(f.Sharpness, 'f', 2, 64),
			strconv.FormatFloat(f.Motion, 'f', 4, 64),
			strconv.FormatFloat(f.Score, 'f', 2, 64),
		})
	}
	return rows
}
