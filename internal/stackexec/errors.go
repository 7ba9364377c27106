package stackexec

import (
	"fmt"
	"strings"

	"shotline/internal/iotype"
	"shotline/internal/services"
)

// ValidationError reports a stage whose requirements are not met by the
// stages before it, or a stage id that is not registered.
type ValidationError struct {
	Stack   string
	StageID string
	Index   int
	Missing []iotype.IOType
	Reason  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Stack != "" {
		fmt.Fprintf(&b, "stack %q: ", e.Stack)
	}
	fmt.Fprintf(&b, "stage %q at index %d", e.StageID, e.Index)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " is missing required input: %s", iotype.Join(e.Missing))
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return services.ErrValidation }

// SwapError reports a requested substitution that cannot be applied.
type SwapError struct {
	Original    string
	Replacement string
	Index       int
	Reason      string
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("cannot swap stage %q for %q at index %d: %s", e.Original, e.Replacement, e.Index, e.Reason)
}

func (e *SwapError) Unwrap() error { return services.ErrSwapIncompatible }

// StageError reports the stage that stopped a stack.
type StageError struct {
	StageID string
	Index   int
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q at index %d failed: %v", e.StageID, e.Index, e.Err)
}

// Unwrap exposes both the stage failure marker and the underlying cause, so
// errors.Is matches ErrStageFailed as well as context.Canceled or any marker
// the stage applied.
func (e *StageError) Unwrap() []error {
	return []error{services.ErrStageFailed, e.Err}
}

// Kind classifies the underlying cause.
func (e *StageError) Kind() services.ErrorKind {
	return services.KindOf(e.Err)
}
