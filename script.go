package radish

import (
	"log/slog"
	"time"
)

// A Script is the root of a host loop: a game clock, the pools and
// a manager ticked together.
type Script struct {
	Time    *GameTime
	Pools   *Pools
	Manager *Manager
}

// NewScript creates a script from cfg. Coroutines started on it
// measure Sleep in the script's normal game time.
func NewScript(cfg Config) *Script {
	clock := NewGameTime()
	if cfg.TimeScale > 0 {
		clock.Scale = cfg.TimeScale
	}
	pools := NewPools()
	pools.PreAlloc(cfg.PreallocDurations, cfg.PreallocHandles, cfg.PreallocDrivers)

	options := []Option{
		WithPools(pools),
		WithTime(clock.Normal()),
		WithDefaultDisableMode(cfg.DefaultDisableMode),
	}
	if level, ok := cfg.level(); ok {
		options = append(options, WithLogger(slog.New(&levelHandler{
			level:   level,
			handler: logger().Handler(),
		})))
	}
	return &Script{
		Time:    clock,
		Pools:   pools,
		Manager: NewManager(options...),
	}
}

// Start starts a coroutine on owner. It takes its first step on the next Update.
func (script *Script) Start(owner Owner, body any, options ...StartOption) (*Coroutine, error) {
	return script.Manager.StartCoroutine(owner, body, options...)
}

// Update advances the clock by dt and steps every coroutine once.
// Update is normally called repeatedly inside a loop,
// for instance a game loop, or any application loop in the main thread.
func (script *Script) Update(dt time.Duration) {
	script.Time.Advance(dt)
	script.Pools.Step()
	script.Manager.Tick()
}

// Cancels every coroutine started on the script.
func (script *Script) Cancel() {
	script.Manager.CancelAll(nil)
}

// Returns true once no coroutine is left running.
func (script *Script) IsDone() bool {
	return script.Manager.Len() == 0
}
