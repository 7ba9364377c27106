package stack_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shotline/internal/iotype"
	"shotline/internal/registry"
	"shotline/internal/services"
	"shotline/internal/stack"
	"shotline/internal/stage"
)

type scoreOptions struct {
	TopK   int     `yaml:"top_k"`
	MinGap float64 `yaml:"min_gap_seconds"`
}

func (scoreOptions) StageID() string { return "score" }

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	exec := func(context.Context, *stage.ExecContext, stage.Bag, stage.Options) stage.Result {
		return stage.Succeed(nil)
	}
	r, err := registry.New(
		stage.Stage{ID: "download", Produces: iotype.NewSet(iotype.Video), Execute: exec},
		stage.Stage{
			ID:             "score",
			Requires:       iotype.NewSet(iotype.Frames),
			Produces:       iotype.NewSet(iotype.Candidates),
			Execute:        exec,
			DefaultOptions: scoreOptions{TopK: 12, MinGap: 1},
			DecodeOptions:  stage.DecodeInto(scoreOptions{TopK: 12, MinGap: 1}),
		},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestBuiltinsAreWellFormed(t *testing.T) {
	catalog := stack.DefaultCatalog()
	want := []string{stack.FrameCandidates, stack.ProductImages, stack.ProductImagesLocal, stack.Rescore}
	if diff := cmp.Diff(want, catalog.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	for _, def := range catalog.All() {
		if err := def.Check(); err != nil {
			t.Errorf("%s: %v", def.Name, err)
		}
	}
	rescore, err := catalog.Get(stack.Rescore)
	if err != nil {
		t.Fatalf("get rescore: %v", err)
	}
	if !rescore.Initial.Has(iotype.Video) {
		t.Fatalf("rescore should start with a video")
	}
	if _, err := catalog.Get("nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseEntriesAndOptions(t *testing.T) {
	data := []byte(`
stacks:
  - name: quick
    description: two stages
    initial: [frames]
    stages:
      - download
      - id: score
        options:
          top_k: 4
`)
	defs, err := stack.Parse(data, testRegistry(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected one stack, got %d", len(defs))
	}
	def := defs[0]
	if def.Name != "quick" || def.String() != "download -> score" {
		t.Fatalf("unexpected definition %q %q", def.Name, def.String())
	}
	if !def.Initial.Equal(iotype.NewSet(iotype.Frames)) {
		t.Fatalf("unexpected initial set %s", def.Initial)
	}
	if def.Entries[0].Options != nil {
		t.Fatalf("bare entry should have no options")
	}
	opts, ok := def.Entries[1].Options.(scoreOptions)
	if !ok {
		t.Fatalf("expected scoreOptions, got %T", def.Entries[1].Options)
	}
	if opts.TopK != 4 || opts.MinGap != 1 {
		t.Fatalf("options should overlay defaults: %+v", opts)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unknown field":       "stacks:\n  - name: a\n    stages: [download]\n    bogus: 1\n",
		"unknown io type":     "stacks:\n  - name: a\n    initial: [sound]\n    stages: [download]\n",
		"no stages":           "stacks:\n  - name: a\n",
		"options not decoded": "stacks:\n  - name: a\n    stages:\n      - id: download\n        options: {x: 1}\n",
		"unknown option key":  "stacks:\n  - name: a\n    stages:\n      - id: score\n        options: {top_k: many}\n",
		"duplicate":           "stacks:\n  - name: a\n    stages: [download]\n  - name: a\n    stages: [download]\n",
	}
	r := testRegistry(t)
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := stack.Parse([]byte(doc), r); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	defs, err := stack.Parse(nil, nil)
	if err != nil || len(defs) != 0 {
		t.Fatalf("empty document should yield no stacks: %v %v", defs, err)
	}
}

func TestLoadFileOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stacks.yaml")
	doc := "stacks:\n  - name: frame-candidates\n    stages: [download]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	catalog := stack.DefaultCatalog()
	n, err := catalog.LoadFile(path, testRegistry(t))
	if err != nil || n != 1 {
		t.Fatalf("LoadFile = %d, %v", n, err)
	}
	def, _ := catalog.Get(stack.FrameCandidates)
	if diff := cmp.Diff([]string{"download"}, def.StageIDs()); diff != "" {
		t.Fatalf("override not applied (-want +got):\n%s", diff)
	}

	if n, err := catalog.LoadFile(filepath.Join(dir, "missing.yaml"), nil); err != nil || n != 0 {
		t.Fatalf("missing file should be ignored: %d %v", n, err)
	}
}

func TestCheckRejectsForeignOptions(t *testing.T) {
	def := stack.Definition{Name: "x", Entries: []stack.Entry{{StageID: "download", Options: scoreOptions{}}}}
	if err := def.Check(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWithout(t *testing.T) {
	def := stack.New("x", "", iotype.NewSet(), "a", "b", "a", "c")
	if diff := cmp.Diff([]string{"b", "c"}, def.Without("a").StageIDs()); diff != "" {
		t.Fatalf("Without mismatch (-want +got):\n%s", diff)
	}
	if len(def.Entries) != 4 {
		t.Fatalf("Without mutated the original")
	}
}
