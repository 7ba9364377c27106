package progress

import (
	"sync"

	"shotline/internal/stage"
)

const defaultBucketPercent = 5

// sampler thins a progress stream down to the updates worth recording: the
// first update of each stage and status, and the first update in each
// percent bucket after that.
type sampler struct {
	mu     sync.Mutex
	bucket float64
	key    string
	last   int
}

func newSampler(bucketPercent float64) *sampler {
	if bucketPercent <= 0 {
		bucketPercent = defaultBucketPercent
	}
	return &sampler{bucket: bucketPercent, last: -1}
}

// allow reports whether update should be recorded. Negative percentages mean
// unknown progress and only pass on a stage or status change.
func (s *sampler) allow(update stage.ProgressUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pass := false
	if key := update.StageID + "/" + update.Status; key != s.key {
		s.key = key
		s.last = -1
		pass = true
	}
	if update.Percent < 0 {
		return pass
	}
	if bucket := int(min(update.Percent, 100) / s.bucket); bucket > s.last {
		s.last = bucket
		pass = true
	}
	return pass
}
