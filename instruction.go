package radish

import (
	"fmt"
	"iter"
)

// A YieldInstruction is a suspended operation that its coroutine
// polls once per step.
type YieldInstruction interface {
	// IsComplete reports whether the operation finished.
	// Once true, it stays true.
	IsComplete() bool

	// Tick polls the instruction. keepBlocking is true when the
	// coroutine should poll again on the next step.
	// yieldObject may substitute a different wait for one step,
	// for instance Frames(1) to skip a poll.
	// Tick on a complete instruction returns false and does nothing.
	Tick() (keepBlocking bool, yieldObject any)
}

// A PooledInstruction goes back to a free-list once its coroutine is done with it.
// A disposed instruction reports IsComplete() == true until it is reused.
type PooledInstruction interface {
	YieldInstruction
	Dispose()
}

// A Pauser is an instruction that stops its own progress while the
// coroutine waiting on it is paused, e.g. a timer.
type Pauser interface {
	Pause()
	Resume()
}

// A CancelObserver is notified when the coroutine waiting on it is
// cancelled gracefully. It is not notified when the owner is destroyed.
type CancelObserver interface {
	OnCancel()
}

// Frames is the native delay: wait this many steps.
// Yielding nil is the same as yielding Frames(1).
type Frames int

// A Sequence is a coroutine body written as an iterator.
// Each yielded value is a yieldable: nil, Frames, a YieldInstruction,
// a nested Sequence or Routine, or any other value which is surfaced
// to the host for one step.
type Sequence = iter.Seq[any]

// A Routine is a coroutine body written as a plain function.
// It directs its own flow through the given *Control.
type Routine func(ctrl *Control)

type stepKind int

const (
	stepFrames stepKind = iota
	stepInstruction
	stepNested
	stepPassthrough
)

// body is a coroutine body in one of its two forms.
type body struct {
	seq     Sequence
	routine Routine
}

// step is a resolved yieldable.
type step struct {
	kind   stepKind
	frames int
	instr  YieldInstruction
	nested body
	value  any
}

// resolve classifies a yielded value. It is called once per value,
// when the coroutine advances.
func resolve(v any) step {
	switch x := v.(type) {
	case nil:
		return step{kind: stepFrames, frames: 1}
	case Frames:
		return step{kind: stepFrames, frames: int(x)}
	case YieldInstruction:
		return step{kind: stepInstruction, instr: x}
	case Sequence:
		return step{kind: stepNested, nested: body{seq: x}}
	case func(func(any) bool):
		return step{kind: stepNested, nested: body{seq: x}}
	case Routine:
		return step{kind: stepNested, nested: body{routine: x}}
	case func(*Control):
		return step{kind: stepNested, nested: body{routine: x}}
	default:
		return step{kind: stepPassthrough, value: v}
	}
}

// asInstruction converts a yieldable into an instruction that can be
// polled on its own. nil and passthrough values give nil.
func asInstruction(v any, pools *Pools, root *Coroutine) YieldInstruction {
	s := resolve(v)
	switch s.kind {
	case stepInstruction:
		return s.instr
	case stepNested:
		return newDriver(s.nested, pools, root)
	case stepFrames:
		if v == nil || s.frames <= 0 {
			return nil
		}
		return WaitFrames(s.frames)
	}
	return nil
}

// bodyOf converts a coroutine body given by the caller.
func bodyOf(b any) (body, error) {
	switch x := b.(type) {
	case nil:
	case Sequence:
		return body{seq: x}, nil
	case func(func(any) bool):
		return body{seq: x}, nil
	case Routine:
		return body{routine: x}, nil
	case func(*Control):
		return body{routine: x}, nil
	case YieldInstruction:
		return body{seq: func(yield func(any) bool) { yield(x) }}, nil
	case []any:
		return body{seq: func(yield func(any) bool) {
			for _, v := range x {
				if !yield(v) {
					return
				}
			}
		}}, nil
	}
	return body{}, fmt.Errorf("%w: %T", ErrUnsupportedBody, b)
}

type framesInstruction struct {
	remaining int
}

// WaitFrames returns an instruction that completes after it has been ticked n times.
func WaitFrames(n int) YieldInstruction {
	return &framesInstruction{remaining: n}
}

func (f *framesInstruction) IsComplete() bool {
	return f.remaining <= 0
}

func (f *framesInstruction) Tick() (bool, any) {
	if f.remaining <= 0 {
		return false, nil
	}
	f.remaining--
	return f.remaining > 0, nil
}
