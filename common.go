package radish

import (
	"errors"

	"golang.org/x/exp/constraints"
)

// The error that is thrown while waiting on
// methods like Yield(), Wait() and Sleep().
// This is used to prevent a coroutine body from continuing
// when cancelled.
// No need to explicitly handle and recover from
// this error inside a coroutine.
var ErrCancelled = errors.New("coroutine has been cancelled")

var (
	// ErrNilOwner is returned when a coroutine is created or registered without an owner.
	ErrNilOwner = errors.New("coroutine owner is nil")

	// ErrAlreadyRegistered is returned when a coroutine is registered
	// with a manager while it is still registered with one.
	ErrAlreadyRegistered = errors.New("coroutine is already registered")

	// ErrCoroutineFinished is returned when a completed or cancelled
	// coroutine is registered or started again.
	ErrCoroutineFinished = errors.New("coroutine has already finished")

	// ErrOwnerInactive is returned when a coroutine is started on an owner
	// that is not active and enabled.
	ErrOwnerInactive = errors.New("coroutine owner is not active")

	// ErrHandleCompleted is returned by OnComplete when the handle
	// has already been signalled.
	ErrHandleCompleted = errors.New("wait handle has already completed")

	// ErrUnsupportedBody is returned when a coroutine body is not a
	// Sequence, Routine or yieldable.
	ErrUnsupportedBody = errors.New("unsupported coroutine body")
)

// A type representing none.
// Used on tasks that doesn't return
// value: quest.Task[Void]
type Void = struct{}

// That value that represents nothing.
// Similar to nil, but safer.
var None = Void{}

func catchCancellation() {
	if err := recover(); err != nil && err != ErrCancelled {
		panic(err)
	}
}

func clamp01[T constraints.Float](v T) T {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
