package radish

import (
	"time"

	"github.com/tanema/gween/ease"
)

type durationState uint8

const (
	durationRunning durationState = iota
	durationPaused
	durationComplete
)

// WaitForDuration completes once its time supplier has advanced by
// the given duration while the timer was running. Pause and Resume
// may be called any number of times; paused time does not count.
type WaitForDuration struct {
	supplier TimeSupplier
	duration time.Duration
	tally    time.Duration
	segStart time.Duration
	state    durationState

	pools    *Pools
	gen      uint64
	released bool
}

// NewWaitForDuration creates an unpooled timer measured on supplier.
// A nil supplier measures wall time.
func NewWaitForDuration(d time.Duration, supplier TimeSupplier) *WaitForDuration {
	timer := &WaitForDuration{}
	timer.init(d, supplier)
	return timer
}

func (t *WaitForDuration) init(d time.Duration, supplier TimeSupplier) {
	if supplier == nil {
		supplier = NewRealTime()
	}
	t.supplier = supplier
	t.duration = d
	t.tally = 0
	t.segStart = supplier.Elapsed()
	t.state = durationRunning
}

// clear leaves the timer complete and detached from its supplier.
func (t *WaitForDuration) clear() {
	t.supplier = nil
	t.duration = 0
	t.tally = 0
	t.segStart = 0
	t.state = durationComplete
}

// Duration is the total running time the timer waits for.
func (t *WaitForDuration) Duration() time.Duration {
	return t.duration
}

// CurrentTime is the running time accumulated so far.
func (t *WaitForDuration) CurrentTime() time.Duration {
	if t.state == durationRunning && t.supplier != nil {
		return t.tally + t.supplier.Elapsed() - t.segStart
	}
	return t.tally
}

// Progress is CurrentTime over Duration, clamped to [0, 1].
func (t *WaitForDuration) Progress() float64 {
	if t.duration <= 0 {
		if t.state == durationComplete {
			return 1
		}
		return 0
	}
	return clamp01(float64(t.CurrentTime()) / float64(t.duration))
}

// EasedProgress maps Progress through an easing function from the
// gween ease package, e.g. ease.OutQuad.
func (t *WaitForDuration) EasedProgress(fn ease.TweenFunc) float64 {
	p := float32(t.Progress())
	if fn == nil {
		return float64(p)
	}
	return float64(fn(p, 0, 1, 1))
}

func (t *WaitForDuration) IsComplete() bool {
	return t.state == durationComplete
}

func (t *WaitForDuration) IsPaused() bool {
	return t.state == durationPaused
}

func (t *WaitForDuration) Tick() (bool, any) {
	switch t.state {
	case durationComplete:
		return false, nil
	case durationPaused:
		return true, nil
	}
	if current := t.CurrentTime(); current >= t.duration {
		t.tally = current
		t.complete()
		return false, nil
	}
	return true, nil
}

func (t *WaitForDuration) complete() {
	t.state = durationComplete
	if t.pools != nil && !t.released {
		t.pools.deferRelease(t)
	}
}

// Pause stops the timer, banking the time run so far.
func (t *WaitForDuration) Pause() {
	if t.state != durationRunning {
		return
	}
	t.tally += t.supplier.Elapsed() - t.segStart
	t.state = durationPaused
}

// Resume continues a paused timer.
func (t *WaitForDuration) Resume() {
	if t.state != durationPaused {
		return
	}
	t.segStart = t.supplier.Elapsed()
	t.state = durationRunning
}

// Reset restarts the timer from zero. No effect on a released pooled timer.
func (t *WaitForDuration) Reset() {
	if t.released || t.supplier == nil {
		return
	}
	t.init(t.duration, t.supplier)
}

// Cancel completes the timer early.
func (t *WaitForDuration) Cancel() {
	if t.state == durationComplete {
		return
	}
	t.tally = t.CurrentTime()
	t.complete()
}

func (t *WaitForDuration) OnCancel() {
	t.Cancel()
}

// Dispose returns a pooled timer to its pool right away.
// No effect on timers created with NewWaitForDuration.
func (t *WaitForDuration) Dispose() {
	if t.pools != nil {
		t.pools.releaseDuration(t, t.gen)
	}
}
