package framescore_test

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shotline/internal/framescore"
)

func framesWithScores(scores ...float64) []framescore.ScoredFrame {
	out := make([]framescore.ScoredFrame, len(scores))
	for i, s := range scores {
		out[i] = framescore.ScoredFrame{Index: i, Timestamp: float64(i), Score: s, Sharpness: s}
	}
	return out
}

func timestamps(frames []framescore.ScoredFrame) []float64 {
	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = f.Timestamp
	}
	return out
}

func TestSelectCandidatesDiverseTopK(t *testing.T) {
	frames := framesWithScores(10, 50, 20, 40, 30)
	got := framescore.SelectCandidates(frames, 2, 2)
	if diff := cmp.Diff([]float64{1, 3}, timestamps(got)); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectCandidatesRelaxesGapToFill(t *testing.T) {
	frames := framesWithScores(10, 50, 20, 40, 30)
	got := framescore.SelectCandidates(frames, 4, 10)
	// Only t1 satisfies the gap; the rest fill by score: t3(40), t4(30), t2(20).
	if diff := cmp.Diff([]float64{1, 2, 3, 4}, timestamps(got)); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectCandidatesEdgeCases(t *testing.T) {
	frames := framesWithScores(1, 2, 3)
	if got := framescore.SelectCandidates(frames, 0, 1); len(got) != 0 {
		t.Fatalf("k=0 should select nothing, got %v", got)
	}
	if got := framescore.SelectCandidates(nil, 3, 1); len(got) != 0 {
		t.Fatalf("no frames should select nothing, got %v", got)
	}
	if got := framescore.SelectCandidates(frames, 10, 0); len(got) != 3 {
		t.Fatalf("k larger than input should return all, got %d", len(got))
	}
	if frames[0].Score != 1 || frames[2].Score != 3 {
		t.Fatal("input slice must not be reordered")
	}
}

func TestSelectCandidatesProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(30) + 1
		frames := make([]framescore.ScoredFrame, n)
		for i := range frames {
			frames[i] = framescore.ScoredFrame{Index: i, Timestamp: float64(i) * 0.5, Score: rng.Float64() * 100}
		}
		k := rng.Intn(8) + 1
		gap := float64(rng.Intn(4))
		got := framescore.SelectCandidates(frames, k, gap)
		if len(got) > k {
			t.Fatalf("trial %d: %d frames returned for k=%d", trial, len(got), k)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp < got[i-1].Timestamp {
				t.Fatalf("trial %d: result not sorted by timestamp", trial)
			}
		}
		// Without relaxation every pair must respect the gap.
		if greedyApart(frames, gap) >= k && !pairwiseApart(got, gap) {
			t.Fatalf("trial %d: gap violated although relaxation was not needed", trial)
		}
	}
}

func greedyApart(frames []framescore.ScoredFrame, gap float64) int {
	ranked := append([]framescore.ScoredFrame(nil), frames...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	var accepted []framescore.ScoredFrame
	for _, f := range ranked {
		if pairwiseApart(append(accepted, f), gap) {
			accepted = append(accepted, f)
		}
	}
	return len(accepted)
}

func pairwiseApart(frames []framescore.ScoredFrame, gap float64) bool {
	for i := range frames {
		for j := i + 1; j < len(frames); j++ {
			if math.Abs(frames[i].Timestamp-frames[j].Timestamp) < gap {
				return false
			}
		}
	}
	return true
}

func TestSelectBestFramePerSecond(t *testing.T) {
	frames := []framescore.ScoredFrame{
		{FrameID: "a", Timestamp: 0.0, Sharpness: 20, Score: 15},
		{FrameID: "b", Timestamp: 0.5, Sharpness: 30, Score: 25},
		{FrameID: "c", Timestamp: 1.2, Sharpness: 4, Score: 90},
		{FrameID: "d", Timestamp: 2.1, Sharpness: 12, Score: 8},
		{FrameID: "e", Timestamp: 2.9, Sharpness: 11, Score: 9},
		{FrameID: "f", Timestamp: 4.0, Sharpness: 10, Score: 3},
	}
	got := framescore.SelectBestFramePerSecond(frames, 10)

	ids := make([]string, len(got))
	for i, f := range got {
		ids[i] = f.FrameID
		if f.Sharpness < 10 {
			t.Fatalf("frame %s below threshold returned", f.FrameID)
		}
	}
	// Bucket 1 has only a blurry frame and contributes nothing.
	if diff := cmp.Diff([]string{"b", "e", "f"}, ids); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectBestFramePerSecondOneFramePerBucket(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	frames := make([]framescore.ScoredFrame, 100)
	for i := range frames {
		frames[i] = framescore.ScoredFrame{Index: i, Timestamp: rng.Float64() * 10, Sharpness: rng.Float64() * 50, Score: rng.Float64() * 100}
	}
	got := framescore.SelectBestFramePerSecond(frames, 25)
	seen := map[int]framescore.ScoredFrame{}
	for _, f := range got {
		bucket := int(math.Floor(f.Timestamp))
		if _, dup := seen[bucket]; dup {
			t.Fatalf("bucket %d returned twice", bucket)
		}
		seen[bucket] = f
	}
	for _, f := range frames {
		if f.Sharpness < 25 {
			continue
		}
		if best := seen[int(math.Floor(f.Timestamp))]; f.Score > best.Score {
			t.Fatalf("frame with score %v beats selected %v in bucket", f.Score, best.Score)
		}
	}
}
