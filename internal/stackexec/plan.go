package stackexec

import (
	"fmt"
	"strings"

	"shotline/internal/iotype"
	"shotline/internal/stack"
	"shotline/internal/stage"
)

// RuntimeConfig carries caller overrides for one execution.
type RuntimeConfig struct {
	// Swaps maps an original stage id to the id of a replacement stage.
	Swaps map[string]string
	// Options overrides options by effective stage id, taking precedence
	// over options in the stack definition and the stage defaults.
	Options map[string]stage.Options
}

// Step is one entry of the effective stage list.
type Step struct {
	Index       int
	Stage       stage.Stage
	Options     stage.Options
	SwappedFrom string
}

// Plan resolves swaps and options and validates the effective stage list
// without running anything.
func (r *Runner) Plan(def stack.Definition, rt RuntimeConfig) ([]Step, error) {
	return r.plan(def, rt, def.Initial)
}

func (r *Runner) plan(def stack.Definition, rt RuntimeConfig, initial iotype.Set) ([]Step, error) {
	if err := def.Check(); err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(def.Entries))
	for i, entry := range def.Entries {
		original, ok := r.registry.Get(entry.StageID)
		if !ok {
			return nil, &ValidationError{Stack: def.Name, StageID: entry.StageID, Index: i, Reason: "stage is not registered"}
		}
		step := Step{Index: i, Stage: original}
		if replacementID := strings.TrimSpace(rt.Swaps[entry.StageID]); replacementID != "" && replacementID != entry.StageID {
			replacement, ok := r.registry.Get(replacementID)
			if !ok {
				return nil, &SwapError{Original: entry.StageID, Replacement: replacementID, Index: i, Reason: "replacement is not registered"}
			}
			if !r.registry.Swappable(entry.StageID, replacementID) {
				return nil, &SwapError{
					Original:    entry.StageID,
					Replacement: replacementID,
					Index:       i,
					Reason: fmt.Sprintf("contract %s -> %s differs from %s -> %s",
						replacement.Requires, replacement.Produces, original.Requires, original.Produces),
				}
			}
			step.Stage = replacement
			step.SwappedFrom = entry.StageID
		}
		opts, err := resolveOptions(def.Name, i, step.Stage, entry, rt)
		if err != nil {
			return nil, err
		}
		step.Options = opts
		steps = append(steps, step)
	}
	if err := validateSteps(def.Name, steps, initial); err != nil {
		return nil, err
	}
	return steps, nil
}

func resolveOptions(stackName string, index int, s stage.Stage, entry stack.Entry, rt RuntimeConfig) (stage.Options, error) {
	if opts, ok := rt.Options[s.ID]; ok && opts != nil {
		if opts.StageID() != s.ID {
			return nil, &ValidationError{Stack: stackName, StageID: s.ID, Index: index,
				Reason: fmt.Sprintf("runtime options belong to stage %q", opts.StageID())}
		}
		return opts, nil
	}
	// Options written for a stage that was swapped out do not apply.
	if entry.Options != nil && entry.Options.StageID() == s.ID {
		return entry.Options, nil
	}
	return s.DefaultOptions, nil
}

func validateSteps(stackName string, steps []Step, initial iotype.Set) error {
	available := initial.Clone()
	for _, step := range steps {
		if missing := step.Stage.Requires.Missing(available); len(missing) > 0 {
			return &ValidationError{Stack: stackName, StageID: step.Stage.ID, Index: step.Index, Missing: missing}
		}
		available = available.Union(step.Stage.Produces)
	}
	return nil
}
