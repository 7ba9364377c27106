package stackexec

import (
	"fmt"
	"math"
	"sync"

	"shotline/internal/stage"
)

// progressTracker maps stage-local percentages onto the stack and keeps the
// emitted sequence monotonic. Stages may report from several goroutines.
type progressTracker struct {
	mu    sync.Mutex
	total int
	last  float64
	emit  stage.ProgressFunc
}

func newProgressTracker(total int, emit stage.ProgressFunc) *progressTracker {
	return &progressTracker{total: total, emit: emit}
}

func (p *progressTracker) bounds(index int) (float64, float64) {
	if p.total <= 0 {
		return 0, 100
	}
	width := 100 / float64(p.total)
	return float64(index) * width, float64(index+1) * width
}

func (p *progressTracker) send(update stage.ProgressUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update.Percent = math.Max(p.last, math.Min(100, update.Percent))
	p.last = update.Percent
	if p.emit != nil {
		p.emit(update)
	}
}

func (p *progressTracker) begin(index int, s stage.Stage) {
	start, _ := p.bounds(index)
	p.send(stage.ProgressUpdate{
		StageID: s.ID,
		Status:  s.StatusLabel(),
		Percent: start,
		Message: fmt.Sprintf("%s started", s.Label()),
	})
}

func (p *progressTracker) stageFunc(index int, s stage.Stage) stage.ProgressFunc {
	start, end := p.bounds(index)
	return func(update stage.ProgressUpdate) {
		local := math.Max(0, math.Min(100, update.Percent))
		p.send(stage.ProgressUpdate{
			StageID: s.ID,
			Status:  s.StatusLabel(),
			Percent: start + (end-start)*local/100,
			Message: update.Message,
		})
	}
}

func (p *progressTracker) finish() {
	p.send(stage.ProgressUpdate{Status: "completed", Percent: 100, Message: "Stack completed"})
}
