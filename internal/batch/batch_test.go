package batch_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"shotline/internal/batch"
	"shotline/internal/services"
)

func TestRunPreservesInputOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	summary := batch.Run(context.Background(), items, func(_ context.Context, _ int, v int) (int, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 10, nil
	}, batch.Options{Concurrency: 3})

	if summary.Succeeded != 5 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if diff := cmp.Diff([]int{50, 10, 40, 20, 30}, summary.Values()); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAlignsResultsWhenLaterItemsFinishFirst(t *testing.T) {
	const n = 8
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	var finished []int
	var mu sync.Mutex
	summary := batch.Run(context.Background(), items, func(_ context.Context, idx int, v int) (int, error) {
		time.Sleep(time.Duration(n-idx) * 3 * time.Millisecond)
		mu.Lock()
		finished = append(finished, idx)
		mu.Unlock()
		return v * 2, nil
	}, batch.Options{Concurrency: n, Max: n})

	if summary.Succeeded != n {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	for i, r := range summary.Results {
		if !r.OK() || r.Value != items[i]*2 {
			t.Fatalf("slot %d = %+v, want %d", i, r, items[i]*2)
		}
	}
	if finished[0] == 0 {
		t.Fatalf("expected a later item to finish first, completion order %v", finished)
	}
}

func TestRunNeverExceedsConcurrency(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32
	items := make([]int, 20)
	batch.Run(context.Background(), items, func(_ context.Context, _ int, _ int) (struct{}, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	}, batch.Options{Concurrency: limit})

	if got := peak.Load(); got > limit {
		t.Fatalf("peak concurrency %d exceeds limit %d", got, limit)
	}
}

func TestRunCapturesFailuresWithoutAbortingSiblings(t *testing.T) {
	boom := errors.New("boom")
	items := []string{"a", "b", "c", "d"}
	summary := batch.Run(context.Background(), items, func(_ context.Context, idx int, v string) (string, error) {
		if idx == 1 {
			return "", boom
		}
		if idx == 2 {
			panic("bad frame")
		}
		return v + v, nil
	}, batch.Options{Concurrency: 2})

	if summary.Succeeded != 2 || summary.Failed != 2 || summary.Skipped != 0 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if !errors.Is(summary.Results[1].Err, boom) || !errors.Is(summary.Results[1].Err, services.ErrItemFailed) {
		t.Fatalf("expected wrapped item error, got %v", summary.Results[1].Err)
	}
	if !errors.Is(summary.Results[2].Err, services.ErrItemFailed) {
		t.Fatalf("expected panic to become item failure, got %v", summary.Results[2].Err)
	}
	if summary.Results[3].Value != "dd" {
		t.Fatalf("unexpected value %q", summary.Results[3].Value)
	}
	if got := summary.Errors(); len(got) != 2 {
		t.Fatalf("expected 2 errors, got %v", got)
	}
	if first := summary.FirstError(); !errors.Is(first, boom) {
		t.Fatalf("expected first error to be item 1, got %v", first)
	}
}

func TestRunStopOnErrorSkipsUnclaimed(t *testing.T) {
	var calls atomic.Int32
	items := make([]int, 10)
	summary := batch.Run(context.Background(), items, func(_ context.Context, idx int, _ int) (int, error) {
		calls.Add(1)
		if idx == 0 {
			return 0, errors.New("first item fails")
		}
		return idx, nil
	}, batch.Options{Concurrency: 1, StopOnError: true})

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
	if summary.Failed != 1 || summary.Skipped != 9 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	for i := 1; i < len(items); i++ {
		if !summary.Results[i].Skipped() {
			t.Fatalf("slot %d should be skipped, got %v", i, summary.Results[i].Err)
		}
	}
	if first := summary.FirstError(); first == nil || errors.Is(first, services.ErrSkipped) {
		t.Fatalf("first error should be the real failure, got %v", first)
	}
}

func TestRunStopOnErrorLetsInFlightItemsFinish(t *testing.T) {
	var (
		mu      sync.Mutex
		started []int
	)
	items := make([]int, 20)
	summary := batch.Run(context.Background(), items, func(_ context.Context, idx int, _ int) (int, error) {
		mu.Lock()
		started = append(started, idx)
		mu.Unlock()
		if idx == 2 {
			time.Sleep(5 * time.Millisecond)
			return 0, errors.New("item 2 fails")
		}
		time.Sleep(20 * time.Millisecond)
		return idx, nil
	}, batch.Options{Concurrency: 3, StopOnError: true})

	slices.Sort(started)
	if diff := cmp.Diff([]int{0, 1, 2}, started); diff != "" {
		t.Fatalf("started indices mismatch (-want +got):\n%s", diff)
	}
	for _, i := range []int{0, 1} {
		if !summary.Results[i].OK() || summary.Results[i].Value != i {
			t.Fatalf("in-flight item %d should succeed, got %+v", i, summary.Results[i])
		}
	}
	if !errors.Is(summary.Results[2].Err, services.ErrItemFailed) {
		t.Fatalf("expected item 2 failure, got %v", summary.Results[2].Err)
	}
	for i := 3; i < len(items); i++ {
		if !summary.Results[i].Skipped() {
			t.Fatalf("slot %d should be skipped, got %v", i, summary.Results[i].Err)
		}
	}
	if summary.Succeeded != 2 || summary.Failed != 1 || summary.Skipped != 17 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
}

func TestRunCancelledContextSkipsEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := batch.Run(ctx, []int{1, 2, 3}, func(context.Context, int, int) (int, error) {
		t.Error("fn must not run after cancellation")
		return 0, nil
	}, batch.Options{Concurrency: 2})
	if summary.Skipped != 3 {
		t.Fatalf("expected all skipped, got %+v", summary)
	}
	if summary.Results[0].Kind() != services.KindSkipped {
		t.Fatalf("unexpected kind %q", summary.Results[0].Kind())
	}
}

func TestRunEmptyInput(t *testing.T) {
	summary := batch.Run(context.Background(), nil, func(context.Context, int, int) (int, error) {
		return 0, nil
	}, batch.Options{Concurrency: 4})
	if len(summary.Results) != 0 || summary.Succeeded != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestOptionsWorkers(t *testing.T) {
	cases := []struct {
		opts batch.Options
		n    int
		want int
	}{
		{batch.Options{}, 5, 1},
		{batch.Options{Concurrency: 4}, 2, 2},
		{batch.Options{Concurrency: 50}, 100, batch.DefaultMax},
		{batch.Options{Concurrency: 50, Max: 20}, 100, 20},
	}
	for _, tc := range cases {
		if got := tc.opts.Workers(tc.n); got != tc.want {
			t.Errorf("Workers(%+v, %d) = %d, want %d", tc.opts, tc.n, got, tc.want)
		}
	}
}

func TestRunSingleWorkerStartsInInputOrder(t *testing.T) {
	var order []int
	items := []int{0, 1, 2, 3, 4, 5}
	batch.Run(context.Background(), items, func(_ context.Context, idx int, _ int) (int, error) {
		order = append(order, idx)
		return idx, nil
	}, batch.Options{Concurrency: 1})
	if diff := cmp.Diff(items, order); diff != "" {
		t.Fatalf("start order mismatch (-want +got):\n%s", diff)
	}
}
