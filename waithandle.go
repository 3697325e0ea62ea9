package radish

import (
	"sync/atomic"

	"github.com/nvlled/quest"
)

const (
	handlePending uint32 = iota
	handleComplete
	handleCancelled
	// handleReleased marks a pooled handle given back unsignalled.
	handleReleased
)

// A WaitHandle is a completion signal that can be completed from outside
// the scheduler, independent of polling. Yielding a handle from a
// coroutine waits until it is signalled.
//
//	Note: Signal and register callbacks from the tick thread.
//	Await() is the only method meant for other goroutines.
type WaitHandle struct {
	status    atomic.Uint32
	callbacks []func(*WaitHandle)
	task      quest.Task[Void]

	pools *Pools
}

// NewWaitHandle creates an unsignalled handle.
func NewWaitHandle() *WaitHandle {
	return &WaitHandle{task: quest.NewTask[Void]()}
}

func (h *WaitHandle) IsComplete() bool {
	return h.status.Load() != handlePending
}

// Cancelled reports whether the handle completed through SignalCancelled.
func (h *WaitHandle) Cancelled() bool {
	return h.status.Load() == handleCancelled
}

func (h *WaitHandle) Tick() (bool, any) {
	return !h.IsComplete(), nil
}

// OnComplete registers fn to run once the handle is signalled.
// Callbacks run in registration order. Registering on a handle
// that already completed returns ErrHandleCompleted and fn never runs.
func (h *WaitHandle) OnComplete(fn func(*WaitHandle)) error {
	if h.IsComplete() {
		return ErrHandleCompleted
	}
	if fn != nil {
		h.callbacks = append(h.callbacks, fn)
	}
	return nil
}

// SignalComplete completes the handle. Only the first signal has an effect.
func (h *WaitHandle) SignalComplete() bool {
	return h.signal(handleComplete)
}

// SignalCancelled completes the handle as cancelled. Only the first signal has an effect.
func (h *WaitHandle) SignalCancelled() bool {
	return h.signal(handleCancelled)
}

func (h *WaitHandle) signal(status uint32) bool {
	if !h.status.CompareAndSwap(handlePending, status) {
		return false
	}

	callbacks := h.callbacks
	h.callbacks = nil
	log := logger()
	for _, fn := range callbacks {
		recoverLogged(log, "wait handle callback", func() { fn(h) })
	}

	if h.task != nil {
		if status == handleComplete {
			h.task.Resolve(None)
		} else {
			h.task.Cancel()
		}
	}
	return true
}

// Await blocks the calling goroutine until the handle is signalled.
// Returns false if it was cancelled.
// Never call Await from the tick thread, it would wait forever.
func (h *WaitHandle) Await() bool {
	if h.task == nil {
		return h.status.Load() == handleComplete
	}
	_, ok := h.task.Await()
	return ok
}

// Reset returns the handle to its initial unsignalled state
// and drops pending callbacks.
func (h *WaitHandle) Reset() {
	h.callbacks = nil
	h.status.Store(handlePending)
	if h.task == nil {
		h.task = quest.NewTask[Void]()
	} else {
		h.task.Reset()
	}
}

// Dispose returns a pooled handle to its pool. No effect on handles
// created with NewWaitHandle.
func (h *WaitHandle) Dispose() {
	if h.pools != nil {
		h.pools.ReleaseWaitHandle(h)
	}
}

// A ResultHandle is a WaitHandle that carries a result when completed.
type ResultHandle[T any] struct {
	WaitHandle
	result T
}

// NewResultHandle creates an unsignalled handle for a result of type T.
func NewResultHandle[T any]() *ResultHandle[T] {
	return &ResultHandle[T]{
		WaitHandle: WaitHandle{task: quest.NewTask[Void]()},
	}
}

// SignalResult stores value and completes the handle.
// Ignored if the handle already completed.
func (h *ResultHandle[T]) SignalResult(value T) bool {
	if h.IsComplete() {
		return false
	}
	h.result = value
	if !h.signal(handleComplete) {
		var zero T
		h.result = zero
		return false
	}
	return true
}

// Result is the value given to SignalResult, or the zero value
// if the handle was cancelled or is still pending.
func (h *ResultHandle[T]) Result() T {
	if h.status.Load() != handleComplete {
		var zero T
		return zero
	}
	return h.result
}

func (h *ResultHandle[T]) Reset() {
	var zero T
	h.result = zero
	h.WaitHandle.Reset()
}
