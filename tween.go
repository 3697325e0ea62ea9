package radish

import (
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// A Tween eases a value from one number to another over a duration,
// handing every new value to a setter. It is a yield instruction, so
// a coroutine can wait for the animation to finish.
type Tween struct {
	timer *WaitForDuration
	tween *gween.Tween
	apply func(float32)
	value float32
}

// NewTween creates a tween measured on supplier. A nil easing is linear.
// apply may be nil; the current value is also available from Value.
func NewTween(
	from, to float32,
	d time.Duration,
	easing ease.TweenFunc,
	supplier TimeSupplier,
	apply func(float32),
) *Tween {
	if easing == nil {
		easing = ease.Linear
	}
	return &Tween{
		timer: NewWaitForDuration(d, supplier),
		tween: gween.New(from, to, float32(d.Seconds()), easing),
		apply: apply,
		value: from,
	}
}

func (tw *Tween) IsComplete() bool {
	return tw.timer.IsComplete()
}

func (tw *Tween) Tick() (bool, any) {
	if tw.timer.IsComplete() {
		return false, nil
	}
	keep, _ := tw.timer.Tick()
	tw.value, _ = tw.tween.Set(float32(tw.timer.CurrentTime().Seconds()))
	if !keep {
		tw.value, _ = tw.tween.Set(float32(tw.timer.Duration().Seconds()))
	}
	if tw.apply != nil {
		tw.apply(tw.value)
	}
	return keep, nil
}

// Value is the last value applied.
func (tw *Tween) Value() float32 { return tw.value }

// Timer exposes the underlying timer for progress queries.
func (tw *Tween) Timer() *WaitForDuration { return tw.timer }

func (tw *Tween) Pause()    { tw.timer.Pause() }
func (tw *Tween) Resume()   { tw.timer.Resume() }
func (tw *Tween) OnCancel() { tw.timer.Cancel() }
