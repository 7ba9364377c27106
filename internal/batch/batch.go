package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"shotline/internal/services"
)

// DefaultMax caps the worker count of every call site unless overridden.
const DefaultMax = 10

// Options tunes a single Run invocation.
type Options struct {
	// Concurrency is the requested number of workers. Values <= 0 mean 1.
	Concurrency int
	// Max is the global ceiling applied to Concurrency. Values <= 0 use DefaultMax.
	Max int
	// StopOnError stops claiming new items after the first failure.
	StopOnError bool
}

// Summary is the aggregate of a Run.
type Summary[Out any] struct {
	Results   []services.Result[Out]
	Succeeded int
	Failed    int
	Skipped   int
}

// Values returns the values of successful results in input order.
func (s Summary[Out]) Values() []Out {
	out := make([]Out, 0, s.Succeeded)
	for _, r := range s.Results {
		if r.OK() {
			out = append(out, r.Value)
		}
	}
	return out
}

// Errors returns the failures, skipped slots excluded, keyed by input index.
func (s Summary[Out]) Errors() map[int]error {
	errs := make(map[int]error, s.Failed)
	for i, r := range s.Results {
		if r.Err != nil && !r.Skipped() {
			errs[i] = r.Err
		}
	}
	return errs
}

// FirstError returns the failure with the lowest index, skipped slots
// excluded, or nil.
func (s Summary[Out]) FirstError() error {
	for _, r := range s.Results {
		if r.Err != nil && !r.Skipped() {
			return r.Err
		}
	}
	return nil
}

// Workers returns the effective worker count for n items.
func (o Options) Workers(n int) int {
	limit := o.Max
	if limit <= 0 {
		limit = DefaultMax
	}
	c := o.Concurrency
	if c <= 0 {
		c = 1
	}
	if c > limit {
		c = limit
	}
	if c > n {
		c = n
	}
	return c
}

// Func processes one item. index is the item's position in the input.
type Func[In, Out any] func(ctx context.Context, index int, item In) (Out, error)

// Run applies fn to every item. It never returns an error itself: per-item
// failures are captured in the Summary. Cancelling ctx stops new claims and
// the remaining slots are reported as skipped.
func Run[In, Out any](ctx context.Context, items []In, fn Func[In, Out], opts Options) Summary[Out] {
	n := len(items)
	results := make([]services.Result[Out], n)
	if n == 0 {
		return Summary[Out]{Results: results}
	}

	var (
		mu      sync.Mutex
		next    int
		stopped bool
	)
	claim := func() (int, bool) {
		mu.Lock()
		defer mu.Unlock()
		if stopped || next >= n || ctx.Err() != nil {
			return 0, false
		}
		idx := next
		next++
		return idx, true
	}
	started := make([]bool, n)

	// Workers never fail the group; item errors are kept in results.
	var g errgroup.Group
	workers := opts.Workers(n)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				idx, ok := claim()
				if !ok {
					return nil
				}
				started[idx] = true
				value, err := invoke(ctx, fn, idx, items[idx])
				if err != nil {
					results[idx] = services.Failure[Out](itemError(idx, err))
					if opts.StopOnError {
						mu.Lock()
						stopped = true
						mu.Unlock()
					}
					continue
				}
				results[idx] = services.Success(value)
			}
		})
	}
	g.Wait()

	summary := Summary[Out]{Results: results}
	for i := range results {
		switch {
		case !started[i]:
			results[i] = services.Failure[Out](fmt.Errorf("item %d: %w", i, services.ErrSkipped))
			summary.Skipped++
		case results[i].OK():
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}
	return summary
}

func invoke[In, Out any](ctx context.Context, fn Func[In, Out], idx int, item In) (value Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, idx, item)
}

func itemError(idx int, err error) error {
	if errors.Is(err, services.ErrItemFailed) {
		return err
	}
	return fmt.Errorf("%w: item %d: %w", services.ErrItemFailed, idx, err)
}
