package stage_test

import (
	"context"
	"errors"
	"testing"

	"shotline/internal/config"
	"shotline/internal/iotype"
	"shotline/internal/services"
	"shotline/internal/stage"
)

type fakeOptions struct {
	Count int    `yaml:"count"`
	Mode  string `yaml:"mode"`
}

func (fakeOptions) StageID() string { return "fake" }

type otherOptions struct{}

func (otherOptions) StageID() string { return "other" }

func noop(context.Context, *stage.ExecContext, stage.Bag, stage.Options) stage.Result {
	return stage.Succeed(nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		stage stage.Stage
		ok    bool
	}{
		{name: "valid", stage: stage.Stage{ID: "a", Execute: noop, Produces: iotype.NewSet(iotype.Video)}, ok: true},
		{name: "missing id", stage: stage.Stage{Execute: noop}},
		{name: "missing execute", stage: stage.Stage{ID: "a"}},
		{name: "unknown type", stage: stage.Stage{ID: "a", Execute: noop, Requires: iotype.NewSet("bogus")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stage.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLabelFallsBackToID(t *testing.T) {
	s := stage.Stage{ID: "extract-frames"}
	if got := s.Label(); got != "Extract Frames" {
		t.Fatalf("Label() = %q", got)
	}
	if got := s.StatusLabel(); got != "Extract Frames" {
		t.Fatalf("StatusLabel() = %q", got)
	}
	s.DisplayName = "Frames"
	s.Status = "extracting"
	if s.Label() != "Frames" || s.StatusLabel() != "extracting" {
		t.Fatalf("explicit labels ignored: %q %q", s.Label(), s.StatusLabel())
	}
}

func TestSucceedAndFail(t *testing.T) {
	if res := stage.Succeed(nil); !res.OK() || res.Value == nil {
		t.Fatalf("Succeed(nil) should produce an empty bag, got %+v", res)
	}
	if res := stage.Fail(nil); res.OK() {
		t.Fatalf("Fail(nil) must not be OK")
	}
}

func TestOptionsAs(t *testing.T) {
	fallback := fakeOptions{Count: 1}
	got, err := stage.OptionsAs(nil, fallback)
	if err != nil || got != fallback {
		t.Fatalf("nil options should use fallback: %+v %v", got, err)
	}
	got, err = stage.OptionsAs[fakeOptions](fakeOptions{Count: 3}, fallback)
	if err != nil || got.Count != 3 {
		t.Fatalf("typed options ignored: %+v %v", got, err)
	}
	if _, err := stage.OptionsAs[fakeOptions](otherOptions{}, fallback); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeIntoKeepsDefaults(t *testing.T) {
	decode := stage.DecodeInto(fakeOptions{Count: 5, Mode: "fast"})
	opts, err := decode(func(target any) error {
		target.(*fakeOptions).Mode = "slow"
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := opts.(fakeOptions)
	if got.Count != 5 || got.Mode != "slow" {
		t.Fatalf("unexpected options %+v", got)
	}

	_, err = decode(func(any) error { return errors.New("bad yaml") })
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecContextReportWithoutCallback(t *testing.T) {
	var ec *stage.ExecContext
	ec.Report(50, "ignored")
	if ec.Log() == nil {
		t.Fatal("expected nop logger")
	}
	called := false
	if err := ec.Time(context.Background(), "op", func(context.Context) error { called = true; return nil }); err != nil || !called {
		t.Fatalf("Time without timer should run fn directly")
	}
}

func TestExecContextConfigOr(t *testing.T) {
	fallback := &config.Config{}
	var nilCtx *stage.ExecContext
	if nilCtx.ConfigOr(fallback) != fallback {
		t.Fatal("nil context should return the fallback")
	}
	if (&stage.ExecContext{}).ConfigOr(fallback) != fallback {
		t.Fatal("context without config should return the fallback")
	}
	job := &config.Config{}
	if (&stage.ExecContext{Config: job}).ConfigOr(fallback) != job {
		t.Fatal("context config should win over the fallback")
	}
}
