package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FramePrefix is the file name prefix of extracted frames.
const FramePrefix = "frame_"

// Progress captures ffmpeg -progress output.
type Progress struct {
	Seconds float64
	Done    bool
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// New constructs an ffmpeg client.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ExtractRequest describes one frame extraction.
type ExtractRequest struct {
	Input     string
	OutputDir string
	FPS       float64
	MaxWidth  int
	Format    string
	Quality   int
	MaxFrames int
}

// Args returns the ffmpeg argument list for the request.
func (r ExtractRequest) Args() []string {
	filters := []string{"fps=" + strconv.FormatFloat(r.FPS, 'f', -1, 64)}
	if r.MaxWidth > 0 {
		filters = append(filters, fmt.Sprintf("scale='min(%d,iw)':-2", r.MaxWidth))
	}
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-progress", "pipe:1", "-nostats",
		"-i", r.Input,
		"-vf", strings.Join(filters, ","),
	}
	if r.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(r.MaxFrames))
	}
	if r.Quality > 0 && (r.Format == "jpg" || r.Format == "jpeg") {
		args = append(args, "-q:v", strconv.Itoa(r.Quality))
	}
	return append(args, filepath.Join(r.OutputDir, FramePrefix+"%05d."+r.Format))
}

// ExtractFrames runs ffmpeg and returns the written frame paths in order.
// Existing frames with the same prefix in OutputDir are removed first.
func (c *Client) ExtractFrames(ctx context.Context, req ExtractRequest, progress func(Progress)) ([]string, error) {
	if req.Input == "" || req.OutputDir == "" {
		return nil, errors.New("input and output directory required")
	}
	if req.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps %v", req.FPS)
	}
	if req.Format == "" {
		req.Format = "jpg"
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := removeFrames(req.OutputDir); err != nil {
		return nil, fmt.Errorf("prepare output directory: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var tail []string
	err := c.exec.Run(runCtx, c.binary, req.Args(), func(line string) {
		if update, ok := parseProgress(line); ok {
			if progress != nil {
				progress(update)
			}
			return
		}
		if line = strings.TrimSpace(line); line != "" && !strings.Contains(line, "=") {
			tail = append(tail, line)
			if len(tail) > 5 {
				tail = tail[1:]
			}
		}
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("ffmpeg extract: %w", context.DeadlineExceeded)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(tail) > 0 {
			return nil, fmt.Errorf("ffmpeg extract: %w: %s", err, strings.Join(tail, "; "))
		}
		return nil, fmt.Errorf("ffmpeg extract: %w", err)
	}

	frames, err := listFrames(req.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("inspect extracted frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, errors.New("ffmpeg produced no frames")
	}
	return frames, nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), FramePrefix) {
			continue
		}
		frames = append(frames, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}

func removeFrames(dir string) error {
	frames, err := listFrames(dir)
	if err != nil {
		return err
	}
	for _, path := range frames {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// parseProgress reads the key=value lines ffmpeg writes with -progress.
func parseProgress(line string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Progress{}, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return Progress{}, false
		}
		return Progress{Seconds: float64(us) / 1e6}, true
	case "progress":
		if value == "end" {
			return Progress{Done: true}, true
		}
	}
	return Progress{}, false
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput == nil {
				continue
			}
			mu.Lock()
			onOutput(scanner.Text())
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
