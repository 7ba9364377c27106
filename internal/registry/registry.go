package registry

import (
	"fmt"
	"sort"
	"sync"

	"shotline/internal/iotype"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// Registry maps stage ids to stages.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]stage.Stage
}

// New constructs a registry holding the supplied stages.
func New(stages ...stage.Stage) (*Registry, error) {
	r := &Registry{stages: make(map[string]stage.Stage, len(stages))}
	for _, s := range stages {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds s, replacing any stage already registered under its id.
func (r *Registry) Register(s stage.Stage) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = make(map[string]stage.Stage)
	}
	r.stages[s.ID] = s
	return nil
}

// Get returns the stage registered under id.
func (r *Registry) Get(id string) (stage.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[id]
	return s, ok
}

// Lookup is Get with a not-found error.
func (r *Registry) Lookup(id string) (stage.Stage, error) {
	s, ok := r.Get(id)
	if !ok {
		return stage.Stage{}, services.Wrap(services.ErrNotFound, id, "lookup", fmt.Sprintf("stage %q is not registered", id), nil)
	}
	return s, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// All returns every registered stage sorted by id.
func (r *Registry) All() []stage.Stage {
	r.mu.RLock()
	out := make([]stage.Stage, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Producers returns the stages whose produces set contains t.
func (r *Registry) Producers(t iotype.IOType) []stage.Stage {
	return r.filter(func(s stage.Stage) bool { return s.Produces.Has(t) })
}

// Consumers returns the stages whose requires set contains t.
func (r *Registry) Consumers(t iotype.IOType) []stage.Stage {
	return r.filter(func(s stage.Stage) bool { return s.Requires.Has(t) })
}

func (r *Registry) filter(keep func(stage.Stage) bool) []stage.Stage {
	var out []stage.Stage
	for _, s := range r.All() {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// Swappable reports whether stages a and b declare equal requires sets and
// equal produces sets. Unknown ids are never swappable.
func (r *Registry) Swappable(a, b string) bool {
	sa, okA := r.Get(a)
	sb, okB := r.Get(b)
	if !okA || !okB {
		return false
	}
	return Compatible(sa, sb)
}

// Compatible reports whether two stages share the same IO contract.
func Compatible(a, b stage.Stage) bool {
	return a.Requires.Equal(b.Requires) && a.Produces.Equal(b.Produces)
}

// Alternatives returns the other registered stages that can replace id.
func (r *Registry) Alternatives(id string) []stage.Stage {
	target, ok := r.Get(id)
	if !ok {
		return nil
	}
	return r.filter(func(s stage.Stage) bool { return s.ID != id && Compatible(target, s) })
}

// Row is a flattened stage description for diagnostics.
type Row struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	Description string   `json:"description,omitempty"`
	Requires    []string `json:"requires"`
	Produces    []string `json:"produces"`
	SwapsWith   []string `json:"swaps_with,omitempty"`
}

// Summary lists every stage with its contract, sorted by id.
func (r *Registry) Summary() []Row {
	stages := r.All()
	rows := make([]Row, 0, len(stages))
	for _, s := range stages {
		row := Row{
			ID:          s.ID,
			Name:        s.Label(),
			Status:      s.StatusLabel(),
			Description: s.Description,
			Requires:    s.Requires.Strings(),
			Produces:    s.Produces.Strings(),
		}
		for _, alt := range r.Alternatives(s.ID) {
			row.SwapsWith = append(row.SwapsWith, alt.ID)
		}
		rows = append(rows, row)
	}
	return rows
}
