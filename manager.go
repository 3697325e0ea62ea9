package radish

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// A Manager runs coroutines bound to owners. The host ticks it once per step;
// it ticks each active coroutine in the order they were registered, and
// applies owner lifecycle transitions according to each coroutine's DisableMode.
//
//	Note: A Manager is not safe for concurrent use. Tick it and register
//	coroutines from the same goroutine (the tick thread).
type Manager struct {
	id  uuid.UUID
	log *slog.Logger

	pools       *Pools
	ownsPools   bool
	time        TimeSupplier
	defaultMode DisableMode

	routines  *sliceSet[*Coroutine]
	owners    map[Owner]*ownerEntry
	ownerList *sliceSet[*ownerEntry]
	tokens    map[any]*Coroutine

	ticking bool
}

type ownerEntry struct {
	owner    Owner
	source   lifecycleSource
	routines *sliceSet[*Coroutine]
}

// An Option configures a Manager.
type Option func(*Manager)

// WithPools makes the manager share a pool provider, usually with other
// managers ticked by the same host loop. The host then calls
// Pools.Step once per host step.
func WithPools(pools *Pools) Option {
	return func(m *Manager) { m.pools = pools }
}

// WithTime sets the time supplier used by Control.Sleep.
func WithTime(supplier TimeSupplier) Option {
	return func(m *Manager) { m.time = supplier }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.log = logger }
}

// WithDefaultDisableMode sets the DisableMode of coroutines started
// without WithDisableMode.
func WithDefaultDisableMode(mode DisableMode) Option {
	return func(m *Manager) { m.defaultMode = mode }
}

// NewManager creates an empty manager. Without options it gets its own
// pools and measures Sleep in wall time.
func NewManager(options ...Option) *Manager {
	m := &Manager{
		id:        uuid.New(),
		routines:  newSliceSet[*Coroutine](),
		owners:    map[Owner]*ownerEntry{},
		ownerList: newSliceSet[*ownerEntry](),
		tokens:    map[any]*Coroutine{},
	}
	for _, opt := range options {
		opt(m)
	}
	if m.log == nil {
		m.log = logger()
	}
	m.log = m.log.With("manager", m.id.String())
	if m.pools == nil {
		m.pools = NewPools()
		m.ownsPools = true
	}
	if m.time == nil {
		m.time = NewRealTime()
	}
	return m
}

func (m *Manager) ID() uuid.UUID       { return m.id }
func (m *Manager) Pools() *Pools        { return m.pools }
func (m *Manager) Time() TimeSupplier   { return m.time }
func (m *Manager) Logger() *slog.Logger { return m.log }

// StartCoroutine creates a coroutine running body on owner and registers it.
// It takes its first step on the next Tick.
func (m *Manager) StartCoroutine(owner Owner, body any, options ...StartOption) (*Coroutine, error) {
	c, err := NewCoroutine(owner, body, append([]StartOption{WithDisableMode(m.defaultMode)}, options...)...)
	if err != nil {
		return nil, fmt.Errorf("start coroutine: %w", err)
	}
	if err := m.RegisterCoroutine(c); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterCoroutine starts an inactive or stopped coroutine on this manager.
func (m *Manager) RegisterCoroutine(c *Coroutine) error {
	return m.register(c, c.token)
}

// RegisterCoroutineWithToken registers c, first cancelling the live
// coroutine registered with the same token, if any.
func (m *Manager) RegisterCoroutineWithToken(c *Coroutine, token any) error {
	return m.register(c, token)
}

func (m *Manager) register(c *Coroutine, token any) error {
	switch {
	case c == nil || c.owner == nil:
		return fmt.Errorf("register coroutine: %w", ErrNilOwner)
	case c.manager != nil:
		return fmt.Errorf("register %v: %w", c, ErrAlreadyRegistered)
	case c.IsFinished():
		return fmt.Errorf("register %v: %w", c, ErrCoroutineFinished)
	case c.owner.IsDestroyed() || !c.owner.IsActive() || !c.owner.IsEnabled():
		return fmt.Errorf("register %v on %v: %w", c, c.owner, ErrOwnerInactive)
	}

	if token != nil {
		if old, ok := m.tokens[token]; ok && old != c && !old.IsFinished() {
			m.log.Debug("auto-kill", "coroutine", old.String(), "by", c.String())
			old.Cancel()
		}
		c.token = token
		m.tokens[token] = c
	}

	if c.pools == nil {
		c.pools = m.pools
	}
	if c.time == nil {
		c.time = m.time
	}
	c.log = m.log
	c.manager = m

	m.track(c)
	m.routines.Add(c)
	c.activate()
	m.log.Debug("coroutine registered", "coroutine", c.String(), "owner", fmt.Sprint(c.owner))
	return nil
}

// track adds c to its owner's entry, creating the entry and its
// lifecycle source on first use.
func (m *Manager) track(c *Coroutine) {
	entry, ok := m.owners[c.owner]
	if !ok {
		entry = &ownerEntry{owner: c.owner, routines: newSliceSet[*Coroutine]()}
		entry.source = newLifecycleSource(c.owner, m.deliver)
		m.owners[c.owner] = entry
		m.ownerList.Add(entry)
	}
	entry.routines.Add(c)
}

func (m *Manager) dropOwner(entry *ownerEntry) {
	entry.source.close()
	delete(m.owners, entry.owner)
	m.ownerList.Remove(entry)
}

// remove forgets c. Called by the coroutine when it stops or finishes.
func (m *Manager) remove(c *Coroutine) {
	if c.manager != m {
		return
	}
	c.manager = nil
	m.routines.Remove(c)
	if entry, ok := m.owners[c.owner]; ok {
		entry.routines.Remove(c)
		if entry.routines.Len() == 0 {
			m.dropOwner(entry)
		}
	}
	if c.token != nil && m.tokens[c.token] == c {
		delete(m.tokens, c.token)
	}
}

// purge drops a coroutine that finished without being removed.
func (m *Manager) purge(entry *ownerEntry, c *Coroutine) {
	if c.manager == m {
		m.remove(c)
		return
	}
	m.routines.Remove(c)
	entry.routines.Remove(c)
	if entry.routines.Len() == 0 {
		m.dropOwner(entry)
	}
}

// UnregisterCoroutine removes c from the manager without finishing it,
// like Coroutine.Stop.
func (m *Manager) UnregisterCoroutine(c *Coroutine) bool {
	if c == nil || c.manager != m {
		return false
	}
	c.Stop()
	if c.manager == m {
		// Stop is a no-op on an inactive coroutine.
		m.remove(c)
	}
	return true
}

// Tick steps every active coroutine once, in registration order.
// Coroutines registered during Tick take their first step on the next Tick.
// A panic raised by a coroutine body propagates to the caller once the
// coroutine is marked cancelled.
func (m *Manager) Tick() {
	if m.ticking {
		panic("radish: Manager.Tick called re-entrantly")
	}
	m.ticking = true
	defer func() { m.ticking = false }()

	if m.ownsPools {
		m.pools.Step()
	} else {
		m.pools.Flush()
	}
	m.pollOwners()

	for _, c := range m.snapshot() {
		if c.manager != m || c.State() != Active {
			continue
		}
		c.step()
	}
}

func (m *Manager) snapshot() []*Coroutine {
	return append([]*Coroutine(nil), m.routines.items...)
}

// pollOwners checks owners that emit no events.
func (m *Manager) pollOwners() {
	m.ownerList.Each(func(entry *ownerEntry) {
		if ev, ok := entry.source.poll(); ok {
			m.handle(entry, ev)
		}
	})
}

// deliver receives transitions pushed by LifecycleEmitter owners.
func (m *Manager) deliver(owner Owner, ev LifecycleEvent) {
	if entry, ok := m.owners[owner]; ok {
		m.handle(entry, ev)
	}
}

// OwnerEnabled applies an enable transition of owner right away.
// For hosts that push transitions instead of relying on polling.
func (m *Manager) OwnerEnabled(owner Owner) { m.push(owner, OwnerEnabled) }

// OwnerDisabled applies a disable transition of owner right away.
func (m *Manager) OwnerDisabled(owner Owner) { m.push(owner, OwnerDisabled) }

// OwnerDestroyed cancels every coroutine of owner.
func (m *Manager) OwnerDestroyed(owner Owner) { m.push(owner, OwnerDestroyed) }

func (m *Manager) push(owner Owner, ev LifecycleEvent) {
	entry, ok := m.owners[owner]
	if !ok {
		return
	}
	m.handle(entry, ev)
	entry.source.sync()
}

func (m *Manager) handle(entry *ownerEntry, ev LifecycleEvent) {
	m.log.Debug("owner transition", "owner", fmt.Sprint(entry.owner), "event", ev.String())
	switch ev {
	case OwnerDisabled:
		deactivated := !entry.owner.IsActive()
		m.eachOwned(entry, func(c *Coroutine) { m.onDisabled(c, deactivated) })
	case OwnerEnabled:
		m.eachOwned(entry, func(c *Coroutine) { m.onEnabled(entry, c) })
	case OwnerDestroyed:
		m.eachOwned(entry, func(c *Coroutine) { c.kill() })
		if current, ok := m.owners[entry.owner]; ok && current == entry {
			m.dropOwner(entry)
		}
	}
}

func (m *Manager) eachOwned(entry *ownerEntry, fn func(*Coroutine)) {
	entry.routines.Each(func(c *Coroutine) {
		recoverLogged(m.log, "owner transition", func() { fn(c) })
	})
}

func (m *Manager) onDisabled(c *Coroutine, deactivated bool) {
	mode := c.mode
	switch {
	case mode.Has(CancelOnDisable):
		c.Cancel()

	case deactivated:
		if !mode.Has(StopOnDisable) && !mode.Has(StopOnDeactivate) {
			c.Cancel()
		} else if mode.resumable() {
			c.pause()
		} else {
			c.Stop()
		}

	case mode.Has(StopOnDisable):
		if mode.resumable() {
			c.pause()
		} else {
			c.Stop()
		}
	}
}

func (m *Manager) onEnabled(entry *ownerEntry, c *Coroutine) {
	switch s := c.State(); {
	case s.finished():
		m.log.Warn("finished coroutine still registered", "coroutine", c.String(), "state", s.String())
		m.purge(entry, c)
	case s == Paused:
		c.resume()
	case s == Inactive && c.mode.resumable():
		c.resume()
	}
}

// GetCoroutines lists the coroutines registered for owner.
func (m *Manager) GetCoroutines(owner Owner) []*Coroutine {
	entry, ok := m.owners[owner]
	if !ok {
		return nil
	}
	return append([]*Coroutine(nil), entry.routines.items...)
}

// Find returns the first registered coroutine for which pred returns true.
func (m *Manager) Find(pred func(*Coroutine) bool) *Coroutine {
	for _, c := range m.routines.items {
		if pred(c) {
			return c
		}
	}
	return nil
}

// FindAll returns every registered coroutine for which pred returns true.
func (m *Manager) FindAll(pred func(*Coroutine) bool) []*Coroutine {
	return m.routines.Filter(pred)
}

// Len is the number of registered coroutines.
func (m *Manager) Len() int {
	return m.routines.Len()
}

// CancelAll cancels every coroutine of owner, or every coroutine
// of the manager when owner is nil.
func (m *Manager) CancelAll(owner Owner) {
	var targets []*Coroutine
	if owner == nil {
		targets = m.snapshot()
	} else {
		targets = m.GetCoroutines(owner)
	}
	for _, c := range targets {
		recoverLogged(m.log, "cancel all", c.Cancel)
	}
}
