package ecs

import (
	"fmt"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/component"
	"github.com/yohamta/donburi/features/events"

	"github.com/nvlled/radish"
)

// LifecycleChange is published when an entity is enabled or disabled.
type LifecycleChange struct {
	Entity donburi.Entity
	Event  radish.LifecycleEvent
}

// LifecycleEventType is the Donburi event type for entity lifecycle changes.
// Changes are queued until the world's events are processed.
var LifecycleEventType = events.NewEventType[LifecycleChange]()

// Activity holds the flags an entity owner reports.
type Activity struct {
	// Active is false when the entity's hierarchy is deactivated.
	Active bool
	// Enabled is false when the entity itself is disabled.
	Enabled bool
}

// ActivityComponent stores the Activity of an entity. Entities start active and enabled.
var ActivityComponent = donburi.NewComponentType[Activity](Activity{Active: true, Enabled: true})

// A Bridge connects the entities of one world to coroutine managers.
// Create one bridge per world.
type Bridge struct {
	world  donburi.World
	owners map[donburi.Entity]*EntityOwner
}

// NewBridge subscribes to the world's lifecycle events and entity removals.
func NewBridge(world donburi.World) *Bridge {
	b := &Bridge{
		world:  world,
		owners: map[donburi.Entity]*EntityOwner{},
	}
	LifecycleEventType.Subscribe(world, b.dispatch)
	world.OnRemove(b.removed)
	return b
}

func (b *Bridge) World() donburi.World { return b.world }

// Create creates an entity carrying ActivityComponent and the given components.
func (b *Bridge) Create(components ...component.IComponentType) donburi.Entity {
	return b.world.Create(append([]component.IComponentType{ActivityComponent}, components...)...)
}

// Owner returns the coroutine owner of entity. The same entity always gives the same owner.
// Entities without ActivityComponent are reported active and enabled.
func (b *Bridge) Owner(entity donburi.Entity) *EntityOwner {
	if owner, ok := b.owners[entity]; ok {
		return owner
	}
	owner := &EntityOwner{bridge: b, entity: entity}
	if !b.world.Valid(entity) {
		owner.destroyed = true
		return owner
	}
	b.owners[entity] = owner
	return owner
}

// SetEnabled enables or disables the entity itself.
func (b *Bridge) SetEnabled(entity donburi.Entity, enabled bool) {
	b.update(entity, func(a *Activity) { a.Enabled = enabled })
}

// SetActive activates or deactivates the entity's hierarchy.
func (b *Bridge) SetActive(entity donburi.Entity, active bool) {
	b.update(entity, func(a *Activity) { a.Active = active })
}

func (b *Bridge) update(entity donburi.Entity, change func(*Activity)) {
	if !b.world.Valid(entity) {
		return
	}
	entry := b.world.Entry(entity)
	if !entry.HasComponent(ActivityComponent) {
		entry.AddComponent(ActivityComponent)
		ActivityComponent.SetValue(entry, Activity{Active: true, Enabled: true})
	}
	activity := ActivityComponent.Get(entry)
	wasActive, was := activity.Active, activity.Active && activity.Enabled
	change(activity)
	now := activity.Active && activity.Enabled
	switch {
	case was && !now, wasActive && !activity.Active:
		LifecycleEventType.Publish(b.world, LifecycleChange{Entity: entity, Event: radish.OwnerDisabled})
	case !was && now:
		LifecycleEventType.Publish(b.world, LifecycleChange{Entity: entity, Event: radish.OwnerEnabled})
	}
}

// ProcessEvents delivers queued lifecycle changes.
func (b *Bridge) ProcessEvents() {
	LifecycleEventType.ProcessEvents(b.world)
}

func (b *Bridge) dispatch(w donburi.World, ev LifecycleChange) {
	if owner, ok := b.owners[ev.Entity]; ok {
		owner.emit(ev.Event)
	}
}

// removed runs before the entity leaves the world.
func (b *Bridge) removed(w donburi.World, entity donburi.Entity) {
	owner, ok := b.owners[entity]
	if !ok {
		return
	}
	delete(b.owners, entity)
	owner.destroyed = true
	owner.emit(radish.OwnerDestroyed)
	owner.listeners = nil
}

// An EntityOwner is a coroutine owner bound to an entity.
// It implements radish.LifecycleEmitter.
type EntityOwner struct {
	bridge    *Bridge
	entity    donburi.Entity
	destroyed bool
	listeners []*listener
}

type listener struct {
	fn func(radish.Owner, radish.LifecycleEvent)
}

func (o *EntityOwner) Entity() donburi.Entity { return o.entity }

func (o *EntityOwner) activity() Activity {
	entry := o.bridge.world.Entry(o.entity)
	if !entry.HasComponent(ActivityComponent) {
		return Activity{Active: true, Enabled: true}
	}
	return ActivityComponent.GetValue(entry)
}

func (o *EntityOwner) IsDestroyed() bool {
	return o.destroyed || !o.bridge.world.Valid(o.entity)
}

func (o *EntityOwner) IsActive() bool {
	return !o.IsDestroyed() && o.activity().Active
}

func (o *EntityOwner) IsEnabled() bool {
	return !o.IsDestroyed() && o.activity().Enabled
}

func (o *EntityOwner) SubscribeLifecycle(fn func(radish.Owner, radish.LifecycleEvent)) func() {
	l := &listener{fn: fn}
	o.listeners = append(o.listeners, l)
	return func() {
		for i, x := range o.listeners {
			if x == l {
				o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

func (o *EntityOwner) emit(ev radish.LifecycleEvent) {
	listeners := append([]*listener(nil), o.listeners...)
	for _, l := range listeners {
		l.fn(o, ev)
	}
}

func (o *EntityOwner) String() string {
	return fmt.Sprintf("entity-%v", o.entity.Id())
}
