package stackexec_test

import (
	"context"
	"sync"
	"testing"

	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/registry"
	"shotline/internal/stage"
)

type recorder struct {
	mu      sync.Mutex
	calls   []string
	updates []stage.ProgressUpdate
}

func (r *recorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *recorder) progress(update stage.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

func (r *recorder) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// producing returns a stage that records its call and writes a marker value
// for each produced type.
func producing(rec *recorder, id string, requires, produces []iotype.IOType) stage.Stage {
	return stage.Stage{
		ID:       id,
		Requires: iotype.NewSet(requires...),
		Produces: iotype.NewSet(produces...),
		Execute: func(_ context.Context, _ *stage.ExecContext, bag stage.Bag, _ stage.Options) stage.Result {
			rec.record(id)
			for _, t := range requires {
				if !bag.Has(t) {
					return stage.Fail(errMissing(t))
				}
			}
			out := stage.Bag{}
			for _, t := range produces {
				out.Set(t, id)
			}
			return stage.Succeed(out)
		},
	}
}

type errMissing iotype.IOType

func (e errMissing) Error() string { return "bag missing " + string(e) }

func newRegistry(t *testing.T, stages ...stage.Stage) *registry.Registry {
	t.Helper()
	r, err := registry.New(stages...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func execContext(rec *recorder) *stage.ExecContext {
	return &stage.ExecContext{JobID: "job-1", Logger: logging.NewNop(), Progress: rec.progress}
}

func types(ts ...iotype.IOType) []iotype.IOType { return ts }
