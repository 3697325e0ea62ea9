package radish

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// An Owner is the host object a coroutine is bound to.
// Owners are used as map keys, so they must be comparable
// (pointers in practice).
type Owner interface {
	// IsActive reports whether the owner's hierarchy is active.
	IsActive() bool
	// IsEnabled reports whether the owner itself is enabled.
	IsEnabled() bool
	IsDestroyed() bool
}

// LifecycleEvent is an owner transition.
type LifecycleEvent uint8

const (
	OwnerEnabled LifecycleEvent = iota + 1
	OwnerDisabled
	OwnerDestroyed
)

func (e LifecycleEvent) String() string {
	switch e {
	case OwnerEnabled:
		return "enabled"
	case OwnerDisabled:
		return "disabled"
	case OwnerDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("LifecycleEvent(%d)", uint8(e))
}

// A LifecycleEmitter is an owner that publishes its own transitions.
// Owners that don't implement it are polled by the manager every tick.
type LifecycleEmitter interface {
	Owner
	SubscribeLifecycle(fn func(Owner, LifecycleEvent)) (unsubscribe func())
}

// DisableMode is the policy applied to a coroutine when its owner
// is disabled or deactivated.
//
// With no flags set, a coroutine keeps running while only its owner
// is disabled, and is cancelled when the owner's hierarchy deactivates.
type DisableMode uint32

const (
	// CancelOnDisable cancels the coroutine as soon as the owner is disabled.
	CancelOnDisable DisableMode = 1 << iota
	// StopOnDisable stops the coroutine when the owner is disabled.
	StopOnDisable
	// StopOnDeactivate stops the coroutine when the owner's hierarchy deactivates.
	StopOnDeactivate
	// ResumeOnEnable turns stops into pauses that end when the owner is enabled again.
	ResumeOnEnable
)

const DisableDefault DisableMode = 0

var disableModeNames = []struct {
	mode DisableMode
	name string
}{
	{CancelOnDisable, "cancel_on_disable"},
	{StopOnDisable, "stop_on_disable"},
	{StopOnDeactivate, "stop_on_deactivate"},
	{ResumeOnEnable, "resume_on_enable"},
}

func (m DisableMode) Has(flag DisableMode) bool {
	return m&flag != 0
}

// resumable reports whether a stop under this mode should be a pause.
func (m DisableMode) resumable() bool {
	return m.Has(ResumeOnEnable)
}

func (m DisableMode) String() string {
	if m == DisableDefault {
		return "default"
	}
	var parts []string
	for _, n := range disableModeNames {
		if m.Has(n.mode) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseDisableMode parses names joined by '|', e.g. "stop_on_disable|resume_on_enable".
func ParseDisableMode(s string) (DisableMode, error) {
	var mode DisableMode
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" || part == "default" {
			continue
		}
		found := false
		for _, n := range disableModeNames {
			if n.name == part {
				mode |= n.mode
				found = true
				break
			}
		}
		if !found {
			return DisableDefault, fmt.Errorf("unknown disable mode %q", part)
		}
	}
	return mode, nil
}

func (m *DisableMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseDisableMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m DisableMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// lifecycleSource delivers an owner's transitions to the manager,
// either pushed by the owner or found by polling.
type lifecycleSource interface {
	// poll reports a transition found since the last call.
	poll() (LifecycleEvent, bool)
	// sync records the owner's current state as seen.
	sync()
	close()
}

func newLifecycleSource(owner Owner, deliver func(Owner, LifecycleEvent)) lifecycleSource {
	if emitter, ok := owner.(LifecycleEmitter); ok {
		return &eventSource{unsubscribe: emitter.SubscribeLifecycle(deliver)}
	}
	src := &pollSource{owner: owner}
	src.sync()
	return src
}

type eventSource struct {
	unsubscribe func()
}

func (s *eventSource) poll() (LifecycleEvent, bool) { return 0, false }
func (s *eventSource) sync()                        {}

func (s *eventSource) close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// pollSource is the naive tracking of an owner that emits no events.
// A deactivation is reported even when the owner was already disabled.
type pollSource struct {
	owner     Owner
	active    bool
	live      bool
	destroyed bool
}

func (s *pollSource) sync() {
	s.destroyed = s.owner.IsDestroyed()
	s.active = !s.destroyed && s.owner.IsActive()
	s.live = s.active && s.owner.IsEnabled()
}

func (s *pollSource) poll() (LifecycleEvent, bool) {
	if s.destroyed {
		return 0, false
	}
	wasActive, wasLive := s.active, s.live
	s.sync()
	switch {
	case s.destroyed:
		return OwnerDestroyed, true
	case wasLive && !s.live, wasActive && !s.active:
		return OwnerDisabled, true
	case !wasLive && s.live:
		return OwnerEnabled, true
	}
	return 0, false
}

func (s *pollSource) close() {}

// Entity is a ready-made owner for hosts without their own object model.
// It publishes its transitions to subscribers.
type Entity struct {
	Name string

	active    bool
	enabled   bool
	destroyed bool
	listeners []*lifecycleListener
}

type lifecycleListener struct {
	fn func(Owner, LifecycleEvent)
}

// NewEntity creates an active, enabled entity.
func NewEntity(name string) *Entity {
	return &Entity{Name: name, active: true, enabled: true}
}

func (e *Entity) IsActive() bool    { return e.active && !e.destroyed }
func (e *Entity) IsEnabled() bool   { return e.enabled && !e.destroyed }
func (e *Entity) IsDestroyed() bool { return e.destroyed }

// SetEnabled enables or disables the entity itself.
func (e *Entity) SetEnabled(enabled bool) {
	e.transition(func() { e.enabled = enabled })
}

// SetActive activates or deactivates the entity's hierarchy.
func (e *Entity) SetActive(active bool) {
	e.transition(func() { e.active = active })
}

// Destroy destroys the entity. Its subscribers are notified once and dropped.
func (e *Entity) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.emit(OwnerDestroyed)
	e.listeners = nil
}

func (e *Entity) transition(change func()) {
	if e.destroyed {
		return
	}
	wasActive, was := e.active, e.active && e.enabled
	change()
	now := e.active && e.enabled
	switch {
	case was && !now, wasActive && !e.active:
		e.emit(OwnerDisabled)
	case !was && now:
		e.emit(OwnerEnabled)
	}
}

func (e *Entity) emit(ev LifecycleEvent) {
	listeners := append([]*lifecycleListener(nil), e.listeners...)
	for _, l := range listeners {
		l.fn(e, ev)
	}
}

func (e *Entity) SubscribeLifecycle(fn func(Owner, LifecycleEvent)) func() {
	l := &lifecycleListener{fn: fn}
	e.listeners = append(e.listeners, l)
	return func() {
		for i, x := range e.listeners {
			if x == l {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Entity) String() string {
	return e.Name
}

type backgroundOwner struct{}

func (backgroundOwner) IsActive() bool    { return true }
func (backgroundOwner) IsEnabled() bool   { return true }
func (backgroundOwner) IsDestroyed() bool { return false }
func (backgroundOwner) String() string    { return "background" }

// Background is an owner that is always active and never destroyed,
// for coroutines not bound to any host object.
var Background Owner = backgroundOwner{}
