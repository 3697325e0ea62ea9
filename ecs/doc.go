// Package ecs provides coroutine owners backed by entities of a donburi world.
//
// A [Bridge] gives every entity an owner whose enabled and active flags live
// in the [ActivityComponent]. Flag changes are published to
// [LifecycleEventType] and reach the coroutine manager when the world's
// events are processed; removing an entity cancels its coroutines at once.
//
// Usage:
//
//	bridge := ecs.NewBridge(world)
//	entity := bridge.Create()
//	manager.StartCoroutine(bridge.Owner(entity), body)
//	...
//	bridge.SetEnabled(entity, false)
//	events.ProcessAllEvents(world)
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
