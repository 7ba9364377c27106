package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"shotline/internal/config"
	"shotline/internal/stage"
)

const lockFileName = ".lock"

// ErrJobLocked is returned when another process holds the job lock.
var ErrJobLocked = errors.New("job workspace is locked by another process")

// Workspace is the locked directory tree of one job.
type Workspace struct {
	dirs stage.Dirs
	lock *flock.Flock
}

// Prepare creates the job directories under the configured work dir and
// acquires the job lock. Callers must Release the workspace.
func Prepare(cfg *config.Config, jobID string) (*Workspace, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	if strings.TrimSpace(cfg.Paths.WorkDir) == "" {
		return nil, errors.New("work_dir is not configured")
	}

	dirs := JobDirs(cfg.Paths.WorkDir, jobID)
	for _, dir := range []string{dirs.Root, dirs.Input, dirs.Frames, dirs.Generated} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create job directory %q: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(dirs.Root, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, jobID)
	}
	return &Workspace{dirs: dirs, lock: lock}, nil
}

// JobDirs returns the directory layout of a job without creating it.
func JobDirs(workDir, jobID string) stage.Dirs {
	root := filepath.Join(workDir, jobID)
	return stage.Dirs{
		Root:      root,
		Input:     filepath.Join(root, "input"),
		Frames:    filepath.Join(root, "frames"),
		Generated: filepath.Join(root, "generated"),
	}
}

// Dirs returns the job directories.
func (w *Workspace) Dirs() stage.Dirs {
	return w.dirs
}

// Release drops the job lock. The directories are kept.
func (w *Workspace) Release() error {
	if w == nil || w.lock == nil {
		return nil
	}
	if err := w.lock.Unlock(); err != nil {
		return fmt.Errorf("release job lock: %w", err)
	}
	return nil
}

// Remove releases the lock and deletes the job directory tree.
func (w *Workspace) Remove() error {
	if w == nil {
		return nil
	}
	if err := w.Release(); err != nil {
		return err
	}
	if err := os.RemoveAll(w.dirs.Root); err != nil {
		return fmt.Errorf("remove job workspace: %w", err)
	}
	return nil
}
