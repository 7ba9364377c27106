package testsupport

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"shotline/internal/config"
	"shotline/internal/logging"
	"shotline/internal/stage"
)

// ProgressRecorder collects progress updates reported through an ExecContext.
type ProgressRecorder struct {
	mu      sync.Mutex
	updates []stage.ProgressUpdate
}

// Record implements stage.ProgressFunc.
func (r *ProgressRecorder) Record(update stage.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

// Updates returns a copy of the recorded updates.
func (r *ProgressRecorder) Updates() []stage.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stage.ProgressUpdate(nil), r.updates...)
}

// NewExecContext builds an execution context with job directories created
// under the config work dir.
func NewExecContext(t testing.TB, cfg *config.Config, source string) (*stage.ExecContext, *ProgressRecorder) {
	t.Helper()

	root := filepath.Join(cfg.Paths.WorkDir, "job-test")
	dirs := stage.Dirs{
		Root:      root,
		Input:     filepath.Join(root, "input"),
		Frames:    filepath.Join(root, "frames"),
		Generated: filepath.Join(root, "generated"),
	}
	for _, dir := range []string{dirs.Input, dirs.Frames, dirs.Generated} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	recorder := &ProgressRecorder{}
	return &stage.ExecContext{
		JobID:    "job-test",
		Job:      stage.Job{ID: "job-test", Name: "test", Source: source},
		Config:   cfg,
		Dirs:     dirs,
		Logger:   logging.NewNop(),
		Progress: recorder.Record,
	}, recorder
}
