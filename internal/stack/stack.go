package stack

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"shotline/internal/iotype"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// Entry is one stage reference within a stack.
type Entry struct {
	StageID string
	// Options overrides the stage defaults for this stack. Nil keeps them.
	Options stage.Options
}

// Definition is an immutable, named stage sequence.
type Definition struct {
	Name        string
	Description string
	// Initial lists the IO types the job's initial bag always contains.
	Initial iotype.Set
	Entries []Entry
}

// New builds a definition from stage ids without options.
func New(name, description string, initial iotype.Set, stageIDs ...string) Definition {
	entries := make([]Entry, 0, len(stageIDs))
	for _, id := range stageIDs {
		entries = append(entries, Entry{StageID: id})
	}
	return Definition{Name: name, Description: description, Initial: initial, Entries: entries}
}

// StageIDs returns the stage ids in order.
func (d Definition) StageIDs() []string {
	out := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		out[i] = e.StageID
	}
	return out
}

// Without returns a copy of d with every entry for stageID removed.
func (d Definition) Without(stageID string) Definition {
	out := d
	out.Entries = nil
	for _, e := range d.Entries {
		if e.StageID != stageID {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// String renders the stage chain.
func (d Definition) String() string {
	return strings.Join(d.StageIDs(), " -> ")
}

// Check verifies the definition is well formed. Stage contracts are checked
// by the stack runner.
func (d Definition) Check() error {
	if strings.TrimSpace(d.Name) == "" {
		return services.Wrap(services.ErrValidation, "", "stack", "stack name is required", nil)
	}
	if len(d.Entries) == 0 {
		return services.Wrap(services.ErrValidation, "", "stack", fmt.Sprintf("stack %q has no stages", d.Name), nil)
	}
	for i, e := range d.Entries {
		if strings.TrimSpace(e.StageID) == "" {
			return services.Wrap(services.ErrValidation, "", "stack", fmt.Sprintf("stack %q entry %d has no stage id", d.Name, i), nil)
		}
		if e.Options != nil && e.Options.StageID() != e.StageID {
			return services.Wrap(services.ErrValidation, e.StageID, "stack",
				fmt.Sprintf("stack %q entry %d carries options for %q", d.Name, i, e.Options.StageID()), nil)
		}
	}
	return nil
}

// Catalog is a set of named definitions.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewCatalog returns a catalog holding defs.
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		c.defs[d.Name] = d
	}
	return c
}

// Add stores d, replacing any definition with the same name.
func (c *Catalog) Add(d Definition) error {
	if err := d.Check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defs == nil {
		c.defs = make(map[string]Definition)
	}
	c.defs[d.Name] = d
	return nil
}

// Get returns the definition registered under name.
func (c *Catalog) Get(name string) (Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[strings.TrimSpace(name)]
	if !ok {
		return Definition{}, services.Wrap(services.ErrNotFound, "", "stack", fmt.Sprintf("unknown stack %q", name), nil)
	}
	return d, nil
}

// Names returns the definition names sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.defs))
	for name := range c.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns every definition sorted by name.
func (c *Catalog) All() []Definition {
	names := c.Names()
	out := make([]Definition, 0, len(names))
	for _, name := range names {
		if d, err := c.Get(name); err == nil {
			out = append(out, d)
		}
	}
	return out
}
