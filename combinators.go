package radish

import (
	"time"

	"github.com/nvlled/quest"

	bits "github.com/nvlled/radish/atombits"
)

// ownedDriver returns instr as a coroutine if it is a driver
// created for a nested body, nil otherwise.
func ownedDriver(instr YieldInstruction) *Coroutine {
	d, ok := instr.(*Coroutine)
	if !ok || !bits.IsSet(&d.flags, flagDriver) || bits.IsSet(&d.flags, flagChild) {
		return nil
	}
	return d
}

func pauseMember(instr YieldInstruction) {
	if d := ownedDriver(instr); d != nil {
		d.pause()
	} else if p, ok := instr.(Pauser); ok {
		p.Pause()
	}
}

func resumeMember(instr YieldInstruction) {
	if d := ownedDriver(instr); d != nil {
		d.resume()
	} else if p, ok := instr.(Pauser); ok {
		p.Resume()
	}
}

func cancelMember(instr YieldInstruction) {
	if d := ownedDriver(instr); d != nil {
		d.Cancel()
	} else if o, ok := instr.(CancelObserver); ok {
		recoverLogged(logger(), "instruction cancel", o.OnCancel)
	}
}

// releaseMember gives a member back once the combinator is done with it.
// Unfinished drivers are killed first.
func releaseMember(instr YieldInstruction) {
	if d := ownedDriver(instr); d != nil {
		d.kill()
		d.Dispose()
		return
	}
	if p, ok := instr.(PooledInstruction); ok && instr.IsComplete() {
		p.Dispose()
	}
}

// WaitForAllComplete completes once every one of its members has completed.
// Pending members are ticked once per step by an internal driver coroutine.
type WaitForAllComplete struct {
	WaitHandle

	pending []YieldInstruction
	driver  *Coroutine
}

// WaitForAll creates an instruction that waits for all items.
// Items are yieldables; nil entries and entries already complete are dropped.
// With nothing left to wait for it is complete right away.
func WaitForAll(items ...any) *WaitForAllComplete {
	return newWaitForAll(nil, nil, items)
}

// WaitForAll is like the package-level WaitForAll, with its drivers
// taken from the pools.
func (p *Pools) WaitForAll(items ...any) *WaitForAllComplete {
	return newWaitForAll(p, nil, items)
}

func newWaitForAll(pools *Pools, root *Coroutine, items []any) *WaitForAllComplete {
	w := &WaitForAllComplete{
		WaitHandle: WaitHandle{task: quest.NewTask[Void]()},
	}
	for _, item := range items {
		instr := asInstruction(item, pools, root)
		if instr == nil {
			continue
		}
		if instr.IsComplete() {
			releaseMember(instr)
			continue
		}
		w.pending = append(w.pending, instr)
	}
	if len(w.pending) == 0 {
		w.SignalComplete()
		return w
	}
	w.driver = newDriver(body{seq: w.run}, pools, root)
	return w
}

func (w *WaitForAllComplete) run(yield func(any) bool) {
	for len(w.pending) > 0 {
		kept := w.pending[:0]
		for _, instr := range w.pending {
			if keep, _ := instr.Tick(); keep && !instr.IsComplete() {
				kept = append(kept, instr)
				continue
			}
			releaseMember(instr)
		}
		for i := len(kept); i < len(w.pending); i++ {
			w.pending[i] = nil
		}
		w.pending = kept
		if len(w.pending) == 0 {
			return
		}
		if !yield(nil) {
			return
		}
	}
}

// Pending is the number of members still being waited on.
func (w *WaitForAllComplete) Pending() int {
	return len(w.pending)
}

func (w *WaitForAllComplete) Tick() (bool, any) {
	if w.IsComplete() || w.driver == nil {
		return false, nil
	}
	if keep, _ := w.driver.Tick(); !keep {
		if w.driver.State() == Complete {
			w.SignalComplete()
		} else {
			w.SignalCancelled()
		}
		w.releaseDriver()
	}
	return !w.IsComplete(), nil
}

func (w *WaitForAllComplete) Pause() {
	for _, instr := range w.pending {
		pauseMember(instr)
	}
}

func (w *WaitForAllComplete) Resume() {
	for _, instr := range w.pending {
		resumeMember(instr)
	}
}

func (w *WaitForAllComplete) OnCancel() {
	if w.IsComplete() {
		return
	}
	for _, instr := range w.pending {
		cancelMember(instr)
	}
	w.SignalCancelled()
	w.Dispose()
}

// Dispose releases the driver and the remaining members.
func (w *WaitForAllComplete) Dispose() {
	for _, instr := range w.pending {
		releaseMember(instr)
	}
	w.pending = nil
	w.releaseDriver()
}

func (w *WaitForAllComplete) releaseDriver() {
	if w.driver == nil {
		return
	}
	w.driver.kill()
	w.driver.Dispose()
	w.driver = nil
}

type anyEntry struct {
	index   int
	item    any
	instr   YieldInstruction
	watcher *Coroutine
}

// WaitForAnyComplete completes as soon as one of its members completes.
// Each pending member is polled by its own watcher coroutine; watchers are
// ticked in input order and the first to finish wins.
type WaitForAnyComplete struct {
	WaitHandle

	entries  []anyEntry
	signaled any
	index    int
}

// WaitForAny creates an instruction that waits for the first item to
// complete. Items are yieldables; nil entries are ignored. If an item is
// already complete it wins immediately. With no item to wait for it is
// complete right away, without a winner.
func WaitForAny(items ...any) *WaitForAnyComplete {
	return newWaitForAny(nil, nil, items)
}

// WaitForAny is like the package-level WaitForAny, with its watchers
// taken from the pools.
func (p *Pools) WaitForAny(items ...any) *WaitForAnyComplete {
	return newWaitForAny(p, nil, items)
}

// Timeout races instr against a timer of length d measured on supplier.
// SignaledIndex() is 1 when the timer won.
func Timeout(instr any, d time.Duration, supplier TimeSupplier) *WaitForAnyComplete {
	return WaitForAny(instr, NewWaitForDuration(d, supplier))
}

func newWaitForAny(pools *Pools, root *Coroutine, items []any) *WaitForAnyComplete {
	w := &WaitForAnyComplete{
		WaitHandle: WaitHandle{task: quest.NewTask[Void]()},
		index:      -1,
	}
	for i, item := range items {
		instr := asInstruction(item, pools, root)
		if instr == nil {
			continue
		}
		if instr.IsComplete() {
			w.signaled = item
			w.index = i
			releaseMember(instr)
			break
		}
		w.entries = append(w.entries, anyEntry{index: i, item: item, instr: instr})
	}
	if w.index >= 0 || len(w.entries) == 0 {
		w.Dispose()
		w.SignalComplete()
		return w
	}
	for i := range w.entries {
		instr := w.entries[i].instr
		w.entries[i].watcher = newDriver(body{seq: watch(instr)}, pools, root)
	}
	return w
}

func watch(instr YieldInstruction) Sequence {
	return func(yield func(any) bool) {
		for {
			if keep, _ := instr.Tick(); !keep || instr.IsComplete() {
				return
			}
			if !yield(nil) {
				return
			}
		}
	}
}

// SignaledInstruction is the item that completed first, as it was given.
// nil until the instruction completes.
func (w *WaitForAnyComplete) SignaledInstruction() any {
	return w.signaled
}

// SignaledIndex is the position of SignaledInstruction among the
// items given, or -1.
func (w *WaitForAnyComplete) SignaledIndex() int {
	return w.index
}

func (w *WaitForAnyComplete) Tick() (bool, any) {
	if w.IsComplete() {
		return false, nil
	}
	for i := range w.entries {
		watcher := w.entries[i].watcher
		if watcher == nil {
			continue
		}
		if keep, _ := watcher.Tick(); keep {
			continue
		}
		if watcher.State() == Complete {
			w.win(i)
			return false, nil
		}
	}
	return true, nil
}

func (w *WaitForAnyComplete) win(i int) {
	w.signaled = w.entries[i].item
	w.index = w.entries[i].index
	w.Dispose()
	w.SignalComplete()
}

func (w *WaitForAnyComplete) Pause() {
	for _, e := range w.entries {
		pauseMember(e.instr)
	}
}

func (w *WaitForAnyComplete) Resume() {
	for _, e := range w.entries {
		resumeMember(e.instr)
	}
}

func (w *WaitForAnyComplete) OnCancel() {
	if w.IsComplete() {
		return
	}
	for _, e := range w.entries {
		cancelMember(e.instr)
	}
	w.SignalCancelled()
	w.Dispose()
}

// Dispose cancels and releases every watcher and the members they own.
func (w *WaitForAnyComplete) Dispose() {
	for i := range w.entries {
		e := &w.entries[i]
		if e.watcher != nil {
			e.watcher.kill()
			e.watcher.Dispose()
			e.watcher = nil
		}
		if e.instr != nil {
			releaseMember(e.instr)
			e.instr = nil
		}
	}
	w.entries = nil
}
