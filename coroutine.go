package radish

import (
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/nvlled/quest"

	bits "github.com/nvlled/radish/atombits"
)

// OperatingState is the lifecycle state of a coroutine.
//
//	Inactive  -> Active     start, resume
//	Active    -> Paused     owner disabled with ResumeOnEnable
//	Paused    -> Active     owner enabled
//	Active    -> Inactive   stop
//	Active    -> Complete   body returned
//	*         -> Cancelled  cancel, owner destroyed, auto-kill
//
// Cancelled and Complete are terminal.
type OperatingState uint32

const (
	Inactive OperatingState = iota
	Active
	Paused
	Cancelled
	Complete
)

func (s OperatingState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("OperatingState(%d)", uint32(s))
}

func (s OperatingState) finished() bool {
	return s == Cancelled || s == Complete
}

const (
	flagRunning uint32 = 1 << iota
	flagStopPending
	flagDriver
	flagPooled
	flagChild
)

// A Coroutine is a resumable, sequential run of yield instructions
// bound to an owner. Create one with Manager.StartCoroutine, or with
// NewCoroutine and Manager.RegisterCoroutine.
//
// A Coroutine is itself a YieldInstruction: yielding it from another
// coroutine waits until it finishes.
type Coroutine struct {
	// ID of the coroutine. Mainly used for debugging.
	ID int64

	owner   Owner
	manager *Manager
	mode    DisableMode
	token   any

	body body
	next func() (any, bool)
	stop func()

	state atomic.Uint32
	flags bits.T

	current     YieldInstruction
	ownsCurrent bool
	wait        int
	yieldObject any

	// root is the coroutine a driver runs on behalf of.
	root     *Coroutine
	children []*Coroutine

	pools      *Pools
	time       TimeSupplier
	log        *slog.Logger
	onFinished []func(*Coroutine)
	task       quest.Task[Void]
}

// A StartOption configures a coroutine before it starts.
type StartOption func(*Coroutine)

// WithDisableMode sets the policy applied when the owner is disabled.
func WithDisableMode(mode DisableMode) StartOption {
	return func(c *Coroutine) { c.mode = mode }
}

// WithToken sets an auto-kill token: registering the coroutine cancels
// any live coroutine holding the same token. The token must be comparable.
func WithToken(token any) StartOption {
	return func(c *Coroutine) { c.token = token }
}

var idGen = atomic.Int64{}

// NewCoroutine creates an inactive coroutine. body is a Sequence,
// a Routine (or func(*Control)), a YieldInstruction, or a []any of yieldables.
func NewCoroutine(owner Owner, b any, options ...StartOption) (*Coroutine, error) {
	if owner == nil {
		return nil, ErrNilOwner
	}
	parsed, err := bodyOf(b)
	if err != nil {
		return nil, err
	}
	c := &Coroutine{
		ID:    idGen.Add(1),
		owner: owner,
		body:  parsed,
		log:   logger(),
		task:  quest.NewTask[Void](),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// newDriver creates an unscheduled coroutine that runs b on behalf of root.
// Drivers back nested sequences and the combinators; whoever holds one ticks it.
func newDriver(b body, pools *Pools, root *Coroutine) *Coroutine {
	var c *Coroutine
	if pools != nil {
		c = pools.driver()
		bits.Set(&c.flags, flagPooled)
	} else {
		c = &Coroutine{}
	}
	c.ID = idGen.Add(1)
	c.body = b
	c.pools = pools
	c.root = root
	c.log = logger()
	if root != nil {
		c.owner = root.owner
		c.time = root.time
		c.log = root.log
	}
	bits.Set(&c.flags, flagDriver)
	c.state.Store(uint32(Active))
	return c
}

// State is the current operating state. Safe to call from any goroutine.
func (c *Coroutine) State() OperatingState {
	return OperatingState(c.state.Load())
}

// IsFinished reports whether the coroutine completed or was cancelled.
func (c *Coroutine) IsFinished() bool {
	return c.State().finished()
}

func (c *Coroutine) IsComplete() bool { return c.IsFinished() }

// Owner is the host object the coroutine is bound to.
func (c *Coroutine) Owner() Owner { return c.owner }

// Manager is the manager the coroutine is registered with, or nil.
func (c *Coroutine) Manager() *Manager { return c.manager }

func (c *Coroutine) DisableMode() DisableMode { return c.mode }

// SetDisableMode changes the disable policy. It applies to the next owner transition.
func (c *Coroutine) SetDisableMode(mode DisableMode) { c.mode = mode }

// Token is the auto-kill token, or nil.
func (c *Coroutine) Token() any { return c.token }

// Current is the instruction the coroutine is waiting on, or nil.
func (c *Coroutine) Current() YieldInstruction { return c.current }

// YieldObject is the value surfaced to the host by the last step:
// a passthrough value yielded by the body, or a substitute wait
// returned by the current instruction.
func (c *Coroutine) YieldObject() any { return c.yieldObject }

// Tick advances an unscheduled coroutine by one step and reports whether
// it keeps going. A coroutine registered with a manager, or started with
// Control.StartAsync, is advanced by its scheduler only; Tick then just
// reports whether it finished.
// Panics raised by the body propagate to the caller.
func (c *Coroutine) Tick() (keepGoing bool, yieldObject any) {
	if c.manager != nil || bits.IsSet(&c.flags, flagChild) {
		return !c.IsFinished(), nil
	}
	if c.State() == Inactive {
		c.activate()
	}
	return c.step()
}

// Cancel stops the coroutine for good. Its current instruction is told
// (if it is a CancelObserver) and disposed, its body is unwound and
// its children are cancelled. No effect on a finished coroutine.
//
//	Note: Called from the coroutine's own body, the body keeps running
//	until its next yield.
func (c *Coroutine) Cancel() {
	c.finish(Cancelled, true)
}

// kill cancels without the graceful phase, for owners that are gone.
func (c *Coroutine) kill() {
	c.finish(Cancelled, false)
}

// Stop deactivates the coroutine and removes it from its manager without
// finishing it. Registering it again continues from the same point.
// A stopped coroutine holds on to its suspended body until it is
// started again or cancelled.
func (c *Coroutine) Stop() {
	s := c.State()
	if s.finished() || s == Inactive {
		return
	}
	if s == Active {
		c.pauseCurrent()
	}
	c.state.Store(uint32(Inactive))
	if m := c.manager; m != nil {
		m.remove(c)
	}
	c.log.Debug("coroutine stopped", "coroutine", c.String())
}

// OnFinished registers fn to run once the coroutine completes or is cancelled.
// Returns ErrCoroutineFinished if that already happened.
func (c *Coroutine) OnFinished(fn func(*Coroutine)) error {
	if c.IsFinished() {
		return ErrCoroutineFinished
	}
	if fn != nil {
		c.onFinished = append(c.onFinished, fn)
	}
	return nil
}

// Await blocks the calling goroutine until the coroutine finishes.
// Returns false if it was cancelled.
// Never call Await from the tick thread, it would wait forever.
func (c *Coroutine) Await() bool {
	if c.task == nil {
		return c.State() == Complete
	}
	_, ok := c.task.Await()
	return ok
}

// Dispose returns a finished internal driver to its pool.
// No effect on other coroutines.
func (c *Coroutine) Dispose() {
	if !bits.IsSet(&c.flags, flagPooled) || !c.IsFinished() || bits.IsSet(&c.flags, flagRunning) {
		return
	}
	pools := c.pools
	c.reset()
	if pools != nil {
		pools.releaseDriver(c)
	}
}

func (c *Coroutine) reset() {
	c.owner = nil
	c.manager = nil
	c.mode = DisableDefault
	c.token = nil
	c.body = body{}
	c.next = nil
	c.stop = nil
	c.flags.Store(0)
	c.current = nil
	c.ownsCurrent = false
	c.wait = 0
	c.yieldObject = nil
	c.root = nil
	c.children = nil
	c.pools = nil
	c.time = nil
	c.onFinished = nil
	c.task = nil
	// A released driver reads as finished until it is reused.
	c.state.Store(uint32(Cancelled))
}

func (c *Coroutine) String() string {
	return fmt.Sprintf("co-%v", c.ID)
}

func (c *Coroutine) rootCoroutine() *Coroutine {
	if c.root != nil {
		return c.root
	}
	return c
}

func (c *Coroutine) timeSupplier() TimeSupplier {
	if c.time == nil {
		c.time = NewRealTime()
	}
	return c.time
}

func (c *Coroutine) activate() {
	s := c.State()
	if s.finished() || s == Active {
		return
	}
	c.state.Store(uint32(Active))
	c.resumeCurrent()
}

func (c *Coroutine) pause() {
	if !c.state.CompareAndSwap(uint32(Active), uint32(Paused)) {
		return
	}
	c.pauseCurrent()
	c.log.Debug("coroutine paused", "coroutine", c.String())
}

func (c *Coroutine) resume() {
	s := c.State()
	if s != Paused && s != Inactive {
		return
	}
	c.activate()
	c.log.Debug("coroutine resumed", "coroutine", c.String())
}

func (c *Coroutine) pauseCurrent() {
	if c.ownsCurrent {
		if d, ok := c.current.(*Coroutine); ok {
			d.pause()
		}
	} else if p, ok := c.current.(Pauser); ok {
		p.Pause()
	}
	for _, child := range c.children {
		child.pause()
	}
}

func (c *Coroutine) resumeCurrent() {
	if c.ownsCurrent {
		if d, ok := c.current.(*Coroutine); ok {
			d.resume()
		}
	} else if p, ok := c.current.(Pauser); ok {
		p.Resume()
	}
	for _, child := range c.children {
		child.resume()
	}
}

// holdCurrent pauses an instruction installed after the coroutine was
// paused or stopped from inside its own body.
func (c *Coroutine) holdCurrent() {
	if c.State() != Active {
		c.pauseCurrent()
	}
}

// step runs the coroutine until its body waits again.
func (c *Coroutine) step() (keepGoing bool, yieldObject any) {
	switch c.State() {
	case Cancelled, Complete:
		return false, nil
	case Paused, Inactive:
		return true, nil
	}

	defer func() {
		if err := recover(); err != nil {
			c.log.Error("coroutine body panicked", "coroutine", c.String(), "panic", fmt.Sprint(err))
			c.finish(Cancelled, false)
			panic(err)
		}
	}()

	c.yieldObject = nil
	keepGoing, yieldObject = c.advance()
	if keepGoing {
		c.tickChildren()
	}
	return keepGoing, yieldObject
}

func (c *Coroutine) advance() (bool, any) {
	if c.wait > 0 {
		c.wait--
		if c.wait > 0 {
			return true, nil
		}
	}

	if c.current != nil {
		keep, obj := c.current.Tick()
		if c.IsFinished() {
			return false, nil
		}
		if keep {
			c.surface(obj)
			return true, c.yieldObject
		}
		c.releaseCurrent()
	}

	if c.next == nil {
		c.start()
	}

	for {
		v, ok := c.pull()
		if bits.IsSet(&c.flags, flagStopPending) {
			// Finished from inside its own body.
			c.stopBody()
			return false, nil
		}
		if !ok {
			c.finish(Complete, true)
			return false, nil
		}

		s := resolve(v)
		switch s.kind {
		case stepFrames:
			if s.frames <= 0 {
				continue
			}
			c.wait = s.frames
			return true, nil

		case stepInstruction:
			if s.instr == YieldInstruction(c) {
				c.log.Warn("coroutine yielded itself", "coroutine", c.String())
				continue
			}
			if s.instr.IsComplete() {
				if p, ok := s.instr.(PooledInstruction); ok {
					p.Dispose()
				}
				continue
			}
			c.current = s.instr
			c.ownsCurrent = false
			c.holdCurrent()
			return true, nil

		case stepNested:
			child := newDriver(s.nested, c.pools, c.rootCoroutine())
			c.current = child
			c.ownsCurrent = true
			keep, obj := child.step()
			if c.IsFinished() {
				return false, nil
			}
			if keep {
				c.holdCurrent()
				c.surface(obj)
				return true, c.yieldObject
			}
			c.releaseCurrent()

		case stepPassthrough:
			c.yieldObject = s.value
			return true, s.value
		}
	}
}

func (c *Coroutine) start() {
	seq := c.body.seq
	if c.body.routine != nil {
		seq = c.routineSequence(c.body.routine)
	}
	if seq == nil {
		seq = func(func(any) bool) {}
	}
	c.next, c.stop = iter.Pull(seq)
}

func (c *Coroutine) routineSequence(routine Routine) Sequence {
	return func(yield func(any) bool) {
		defer catchCancellation()
		routine(&Control{co: c, root: c.rootCoroutine(), yield: yield})
	}
}

func (c *Coroutine) pull() (any, bool) {
	bits.Set(&c.flags, flagRunning)
	defer bits.Unset(&c.flags, flagRunning)
	return c.next()
}

// surface applies a yield object returned by the current instruction.
func (c *Coroutine) surface(obj any) {
	switch x := obj.(type) {
	case nil:
	case Frames:
		if x > 1 {
			c.wait = int(x)
		}
	default:
		c.yieldObject = obj
	}
}

func (c *Coroutine) releaseCurrent() {
	current := c.current
	c.current = nil
	c.ownsCurrent = false
	c.wait = 0
	if p, ok := current.(PooledInstruction); ok {
		p.Dispose()
	}
}

func (c *Coroutine) stopBody() {
	bits.Unset(&c.flags, flagStopPending)
	if c.stop == nil {
		return
	}
	stop := c.stop
	c.stop = nil
	stop()
}

// finish moves the coroutine to a terminal state and cleans up.
// graceful is false when the owner is already gone.
func (c *Coroutine) finish(terminal OperatingState, graceful bool) bool {
	for {
		s := c.State()
		if s.finished() {
			return false
		}
		if c.state.CompareAndSwap(uint32(s), uint32(terminal)) {
			break
		}
	}

	if c.current != nil && terminal == Cancelled {
		if c.ownsCurrent {
			if d, ok := c.current.(*Coroutine); ok {
				d.finish(Cancelled, graceful)
			}
		} else if o, ok := c.current.(CancelObserver); ok && graceful {
			recoverLogged(c.log, "instruction cancel", o.OnCancel)
		}
	}
	c.releaseCurrent()

	children := c.children
	c.children = nil
	for _, child := range children {
		child.finish(Cancelled, graceful)
	}

	if bits.IsSet(&c.flags, flagRunning) {
		bits.Set(&c.flags, flagStopPending)
	} else {
		c.stopBody()
	}

	if m := c.manager; m != nil {
		m.remove(c)
	}

	if c.task != nil {
		if terminal == Complete {
			c.task.Resolve(None)
		} else {
			c.task.Cancel()
		}
	}

	callbacks := c.onFinished
	c.onFinished = nil
	for _, fn := range callbacks {
		recoverLogged(c.log, "coroutine finished callback", func() { fn(c) })
	}

	if !bits.IsSet(&c.flags, flagDriver) {
		c.log.Debug("coroutine finished", "coroutine", c.String(), "state", terminal.String())
	}
	return true
}

func (c *Coroutine) startChild(b any) (*Coroutine, error) {
	parsed, err := bodyOf(b)
	if err != nil {
		return nil, err
	}
	child := newDriver(parsed, nil, c)
	// A child is its own root: cancelling it leaves the parent running.
	child.root = nil
	child.pools = c.pools
	child.task = quest.NewTask[Void]()
	bits.Set(&child.flags, flagChild)
	c.children = append(c.children, child)
	return child, nil
}

// tickChildren steps the children started with Control.StartAsync
// and drops the finished ones.
func (c *Coroutine) tickChildren() {
	if len(c.children) == 0 {
		return
	}
	children := append([]*Coroutine(nil), c.children...)
	for _, child := range children {
		if c.State() != Active {
			return
		}
		child.step()
	}
	alive := c.children[:0]
	for _, child := range c.children {
		if !child.IsFinished() {
			alive = append(alive, child)
		}
	}
	for i := len(alive); i < len(c.children); i++ {
		c.children[i] = nil
	}
	c.children = alive
}
