package radish

import (
	"sync"
	"time"

	"github.com/nvlled/mud"
)

// Pools is the free-list provider for pooled instructions: timers,
// wait handles and the internal driver coroutines of combinators.
// Create one per host loop and hand it to the managers that share it.
type Pools struct {
	pool *mud.Pool

	// Guards step and deferred. Timers may be cancelled from any goroutine.
	mu       sync.Mutex
	step     uint64
	deferred []deferredRelease
	spare    []deferredRelease
}

type deferredRelease struct {
	timer *WaitForDuration
	gen   uint64
	step  uint64
}

// NewPools creates an empty pool provider.
func NewPools() *Pools {
	return &Pools{pool: mud.NewPool()}
}

func newPooledDuration() *WaitForDuration { return &WaitForDuration{state: durationComplete} }
func newPooledHandle() *WaitHandle        { return NewWaitHandle() }
func newPooledDriver() *Coroutine         { return &Coroutine{} }

// PreAlloc pre-allocates a number of timers, wait handles and driver coroutines.
func (p *Pools) PreAlloc(durations, handles, drivers int) {
	if durations > 0 {
		mud.PreAlloc(p.pool, newPooledDuration, durations)
	}
	if handles > 0 {
		mud.PreAlloc(p.pool, newPooledHandle, handles)
	}
	if drivers > 0 {
		mud.PreAlloc(p.pool, newPooledDriver, drivers)
	}
}

// Duration returns a pooled timer of length d measured on supplier.
// It releases itself one step after it completes, or when the
// coroutine that waited on it moves on, whichever comes first.
func (p *Pools) Duration(d time.Duration, supplier TimeSupplier) *WaitForDuration {
	timer := mud.Alloc(p.pool, newPooledDuration)
	timer.pools = p
	timer.gen++
	timer.released = false
	timer.init(d, supplier)
	return timer
}

func (p *Pools) releaseDuration(timer *WaitForDuration, gen uint64) {
	if timer.gen != gen || timer.released {
		return
	}
	timer.released = true
	timer.clear()
	mud.Free(p.pool, timer)
}

func (p *Pools) deferRelease(timer *WaitForDuration) {
	p.mu.Lock()
	p.deferred = append(p.deferred, deferredRelease{timer: timer, gen: timer.gen, step: p.step})
	p.mu.Unlock()
}

// Step starts a new host step and flushes. Call it once per host step
// when several managers share the pools; a manager with its own pools
// does it at the start of every Tick.
func (p *Pools) Step() {
	p.mu.Lock()
	p.step++
	p.mu.Unlock()
	p.Flush()
}

// Flush releases timers whose release was deferred in an earlier step.
// Releases queued during the current step wait for the next one.
func (p *Pools) Flush() {
	p.mu.Lock()
	step := p.step
	queue := p.deferred
	p.deferred = p.spare[:0]
	for _, r := range queue {
		if r.step == step {
			p.deferred = append(p.deferred, r)
		}
	}
	p.mu.Unlock()

	for i, r := range queue {
		if r.step != step {
			p.releaseDuration(r.timer, r.gen)
		}
		queue[i] = deferredRelease{}
	}

	p.mu.Lock()
	p.spare = queue[:0]
	p.mu.Unlock()
}

// WaitHandle returns a pooled, unsignalled handle. Give it back with
// ReleaseWaitHandle (or Dispose) once nobody waits on it.
func (p *Pools) WaitHandle() *WaitHandle {
	h := mud.Alloc(p.pool, newPooledHandle)
	h.Reset()
	h.pools = p
	return h
}

// ReleaseWaitHandle drops the callbacks of h and returns it to the pool.
func (p *Pools) ReleaseWaitHandle(h *WaitHandle) {
	if h == nil || h.pools != p {
		return
	}
	h.pools = nil
	// A released handle reads as complete until it is reused.
	// Cancelled() keeps reporting how it was signalled.
	h.callbacks = nil
	h.status.CompareAndSwap(handlePending, handleReleased)
	h.task.Cancel()
	mud.Free(p.pool, h)
}

func (p *Pools) driver() *Coroutine {
	return mud.Alloc(p.pool, newPooledDriver)
}

func (p *Pools) releaseDriver(c *Coroutine) {
	mud.Free(p.pool, c)
}
