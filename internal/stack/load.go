package stack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"shotline/internal/iotype"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// StageLookup resolves stage ids to stages for option decoding.
type StageLookup interface {
	Get(id string) (stage.Stage, bool)
}

type fileDoc struct {
	Stacks []fileStack `yaml:"stacks"`
}

type fileStack struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Initial     []string    `yaml:"initial,omitempty"`
	Stages      []fileEntry `yaml:"stages"`
}

// fileEntry accepts either a bare stage id or a mapping with options.
type fileEntry struct {
	ID      string
	Options *yaml.Node
}

func (e *fileEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.ID = strings.TrimSpace(node.Value)
		return nil
	}
	var raw struct {
		ID      string    `yaml:"id"`
		Options yaml.Node `yaml:"options"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.ID = strings.TrimSpace(raw.ID)
	if raw.Options.Kind != 0 {
		opts := raw.Options
		e.Options = &opts
	}
	return nil
}

// Parse decodes stack definitions from YAML. Per-stage options are decoded by
// the stage found through lookup; options for a stage without a decoder are
// an error.
func Parse(data []byte, lookup StageLookup) ([]Definition, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "", "parse stacks", "", err)
	}

	defs := make([]Definition, 0, len(doc.Stacks))
	seen := make(map[string]bool, len(doc.Stacks))
	for _, fs := range doc.Stacks {
		def, err := fs.definition(lookup)
		if err != nil {
			return nil, err
		}
		if seen[def.Name] {
			return nil, services.Wrap(services.ErrValidation, "", "parse stacks", fmt.Sprintf("duplicate stack %q", def.Name), nil)
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}
	return defs, nil
}

func (fs fileStack) definition(lookup StageLookup) (Definition, error) {
	initial := iotype.NewSet()
	for _, name := range fs.Initial {
		t, err := iotype.Parse(name)
		if err != nil {
			return Definition{}, services.Wrap(services.ErrValidation, "", "parse stacks", fmt.Sprintf("stack %q initial types", fs.Name), err)
		}
		initial = initial.Add(t)
	}
	def := Definition{
		Name:        strings.TrimSpace(fs.Name),
		Description: strings.TrimSpace(fs.Description),
		Initial:     initial,
	}
	for i, fe := range fs.Stages {
		entry := Entry{StageID: fe.ID}
		if fe.Options != nil {
			opts, err := decodeOptions(lookup, fe)
			if err != nil {
				return Definition{}, services.Wrap(services.ErrValidation, fe.ID, "parse stacks",
					fmt.Sprintf("stack %q entry %d options", def.Name, i), err)
			}
			entry.Options = opts
		}
		def.Entries = append(def.Entries, entry)
	}
	if err := def.Check(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func decodeOptions(lookup StageLookup, fe fileEntry) (stage.Options, error) {
	if lookup == nil {
		return nil, fmt.Errorf("no stage lookup available")
	}
	s, ok := lookup.Get(fe.ID)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, fe.ID, "decode options", "stage is not registered", nil)
	}
	if s.DecodeOptions == nil {
		return nil, fmt.Errorf("stage %q does not accept options", fe.ID)
	}
	return s.DecodeOptions(func(target any) error {
		return fe.Options.Decode(target)
	})
}

// LoadFile parses path and adds its definitions to c, replacing built-ins
// with the same name. A missing file is not an error.
func (c *Catalog) LoadFile(path string, lookup StageLookup) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, services.Wrap(services.ErrConfiguration, "", "load stacks", path, err)
	}
	defs, err := Parse(data, lookup)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for _, d := range defs {
		if err := c.Add(d); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}
