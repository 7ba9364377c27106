package framescore

import (
	"math"
	"sort"
)

// SelectCandidates returns up to k frames, preferring high scores while
// keeping accepted frames at least minGap seconds apart. When the gap rule
// leaves slots empty, the remaining slots are filled from the best
// unaccepted frames regardless of proximity. The result is sorted by
// timestamp.
func SelectCandidates(frames []ScoredFrame, k int, minGap float64) []ScoredFrame {
	if k <= 0 || len(frames) == 0 {
		return nil
	}
	ranked := byScoreDesc(frames)

	accepted := make([]ScoredFrame, 0, min(k, len(ranked)))
	taken := make([]bool, len(ranked))
	for i, f := range ranked {
		if len(accepted) == k {
			break
		}
		if farEnough(f.Timestamp, accepted, minGap) {
			accepted = append(accepted, f)
			taken[i] = true
		}
	}
	for i, f := range ranked {
		if len(accepted) == k {
			break
		}
		if !taken[i] {
			accepted = append(accepted, f)
			taken[i] = true
		}
	}
	sortByTimestamp(accepted)
	return accepted
}

// SelectBestFramePerSecond drops frames whose sharpness is below
// minSharpness, then keeps the highest scoring frame of each integer-second
// bucket. Buckets without a surviving frame contribute nothing.
func SelectBestFramePerSecond(frames []ScoredFrame, minSharpness float64) []ScoredFrame {
	best := make(map[int64]ScoredFrame)
	for _, f := range frames {
		if f.Sharpness < minSharpness {
			continue
		}
		bucket := int64(math.Floor(f.Timestamp))
		cur, ok := best[bucket]
		if !ok || better(f, cur) {
			best[bucket] = f
		}
	}
	out := make([]ScoredFrame, 0, len(best))
	for _, f := range best {
		out = append(out, f)
	}
	sortByTimestamp(out)
	return out
}

func farEnough(ts float64, accepted []ScoredFrame, minGap float64) bool {
	for _, a := range accepted {
		if math.Abs(ts-a.Timestamp) < minGap {
			return false
		}
	}
	return true
}

// better orders by score, then earlier timestamp, then lower index so ties
// resolve the same way on every run.
func better(a, b ScoredFrame) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Index < b.Index
}

func byScoreDesc(frames []ScoredFrame) []ScoredFrame {
	ranked := make([]ScoredFrame, len(frames))
	copy(ranked, frames)
	sort.SliceStable(ranked, func(i, j int) bool { return better(ranked[i], ranked[j]) })
	return ranked
}

func sortByTimestamp(frames []ScoredFrame) {
	sort.SliceStable(frames, func(i, j int) bool {
		if frames[i].Timestamp != frames[j].Timestamp {
			return frames[i].Timestamp < frames[j].Timestamp
		}
		return frames[i].Index < frames[j].Index
	})
}
