package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shotline/internal/config"
	"shotline/internal/iotype"
	"shotline/internal/services"
)

// Result is the outcome of one stage execution.
type Result = services.Result[Bag]

// ExecuteFunc runs a stage against the current bag. The bag is read-only for
// the stage; new data must be returned in the Result.
type ExecuteFunc func(ctx context.Context, ec *ExecContext, bag Bag, opts Options) Result

// Stage is one pipeline step with a declared IO contract. Stages are values
// registered once at startup and never mutated afterwards.
type Stage struct {
	ID          string
	DisplayName string
	// Status is the label reported in progress updates while the stage runs.
	Status      string
	Description string
	Requires    iotype.Set
	Produces    iotype.Set
	Execute     ExecuteFunc
	// DefaultOptions is passed to Execute when neither the stack entry nor the
	// runtime configuration supplies options.
	DefaultOptions Options
	// DecodeOptions turns a stack file entry into typed options. Stages
	// without options leave it nil.
	DecodeOptions DecodeFunc
	// HealthCheck reports whether the stage's external dependencies are usable.
	HealthCheck func(ctx context.Context, cfg *config.Config) Health
}

// Succeed wraps data produced by a stage.
func Succeed(data Bag) Result {
	if data == nil {
		data = Bag{}
	}
	return services.Success(data)
}

// Fail reports that the stage produced nothing usable.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("stage failed without an error")
	}
	return services.Failure[Bag](err)
}

// Validate checks the static declaration of a stage.
func (s Stage) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return services.Wrap(services.ErrValidation, "stage", "register", "stage id is required", nil)
	}
	if s.Execute == nil {
		return services.Wrap(services.ErrValidation, s.ID, "register", "stage has no execute function", nil)
	}
	for _, set := range []iotype.Set{s.Requires, s.Produces} {
		for _, t := range set.Sorted() {
			if !t.Valid() {
				return services.Wrap(services.ErrValidation, s.ID, "register", fmt.Sprintf("unknown io type %q", t), nil)
			}
		}
	}
	return nil
}

var titleCaser = cases.Title(language.Und)

// Label returns the display name, deriving one from the id when unset.
func (s Stage) Label() string {
	if name := strings.TrimSpace(s.DisplayName); name != "" {
		return name
	}
	return titleCaser.String(strings.NewReplacer("-", " ", "_", " ").Replace(s.ID))
}

// StatusLabel returns the progress status, falling back to the label.
func (s Stage) StatusLabel() string {
	if status := strings.TrimSpace(s.Status); status != "" {
		return status
	}
	return s.Label()
}
