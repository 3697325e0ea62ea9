package radish

import (
	"fmt"
	"time"
)

// A Control is used to direct the program flow of a coroutine
// whose body is a Routine.
//
//	Note: Methods may block for one or more steps.
//
//	Note: Control methods should be only called within a coroutine
//	since yield methods will panic with ErrCancelled when cancelled.
//	This error will automatically be handled inside a coroutine,
//	no need to try to recover from this.
type Control struct {
	co    *Coroutine
	root  *Coroutine
	yield func(any) bool
}

// Yield waits until the next step.
// Panics when cancelled.
func (ctrl *Control) Yield() {
	ctrl.Wait(nil)
}

// Wait suspends the coroutine on a yieldable: nil, Frames,
// a YieldInstruction, a nested Sequence or Routine, or a value
// to surface to the host.
// Panics when cancelled.
func (ctrl *Control) Wait(v any) {
	if ctrl.root.IsFinished() || !ctrl.yield(v) {
		panic(ErrCancelled)
	}
	if ctrl.root.IsFinished() {
		panic(ErrCancelled)
	}
}

// Delay waits for a number of steps.
// Panics when cancelled.
func (ctrl *Control) Delay(count int) {
	if count <= 0 {
		return
	}
	ctrl.Wait(Frames(count))
}

// Sleep waits until d has passed on the coroutine's time supplier,
// pausing along with the coroutine.
//
//	Note: Actual sleep duration might be off by up to one step,
//	depending on the step rate.
func (ctrl *Control) Sleep(d time.Duration) {
	supplier := ctrl.root.timeSupplier()
	if pools := ctrl.root.pools; pools != nil {
		ctrl.Wait(pools.Duration(d, supplier))
		return
	}
	ctrl.Wait(NewWaitForDuration(d, supplier))
}

// WaitAll waits until every yieldable has completed.
func (ctrl *Control) WaitAll(items ...any) {
	ctrl.Wait(newWaitForAll(ctrl.root.pools, ctrl.root, items))
}

// WaitAny waits until the first yieldable completes and returns it.
func (ctrl *Control) WaitAny(items ...any) any {
	waiter := newWaitForAny(ctrl.root.pools, ctrl.root, items)
	ctrl.Wait(waiter)
	return waiter.SignaledInstruction()
}

// Repeatedly yields, and stops when *value is false or nil.
func (ctrl *Control) YieldWhileVar(value *bool) {
	for value != nil && *value {
		ctrl.Yield()
	}
}

// Repeatedly yields, and stops when fn returns false.
func (ctrl *Control) YieldWhile(fn func() bool) {
	for fn() {
		ctrl.Yield()
	}
}

// Repeatedly yields, and stops when *value is true.
// Similar to YieldWhileVar(), but with the condition negated.
func (ctrl *Control) YieldUntilVar(value *bool) {
	for value == nil || !*value {
		ctrl.Yield()
	}
}

// Repeatedly yields, and stops when fn returns true.
// Similar to YieldWhile(), but with the condition negated.
func (ctrl *Control) YieldUntil(fn func() bool) {
	for !fn() {
		ctrl.Yield()
	}
}

// Causes the coroutine to block indefinitely and
// spiral downwards the endless depths of nothingness, never
// again to return from the utter blackness of empty void.
func (ctrl *Control) Abyss() {
	for {
		ctrl.Yield()
	}
}

// Cancels the coroutine. Also cancels all child coroutines created with
// StartAsync.
//
//	Note: Cancel() won't immediately unwind the body.
//	The body stops at its next yield.
func (ctrl *Control) Cancel() {
	ctrl.root.Cancel()
}

// IsCancelled reports whether the coroutine was cancelled.
func (ctrl *Control) IsCancelled() bool {
	return ctrl.root.State() == Cancelled
}

// Owner is the owner of the coroutine.
func (ctrl *Control) Owner() Owner {
	return ctrl.root.owner
}

// Coroutine is the coroutine this body runs on.
func (ctrl *Control) Coroutine() *Coroutine {
	return ctrl.root
}

// Starts a new child coroutine asynchronously. The child
// is stepped right after the current coroutine on every step and is
// automatically cancelled when the current coroutine finishes.
// To explicitly wait for the child coroutine to finish, yield it:
//
//	child, _ := ctrl.StartAsync(body)
//	ctrl.Wait(child)
func (ctrl *Control) StartAsync(body any) (*Coroutine, error) {
	if ctrl.root.IsFinished() {
		return nil, ErrCoroutineFinished
	}
	return ctrl.root.startChild(body)
}

// Use for debugging. Call SetLogging(true) to enable.
func (ctrl *Control) Logf(format string, args ...any) {
	ctrl.root.log.Debug(fmt.Sprintf(format, args...), "coroutine", ctrl.co.String())
}

func (ctrl *Control) String() string {
	return ctrl.co.String()
}
