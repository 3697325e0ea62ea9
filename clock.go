package radish

import (
	"time"
)

// A TimeSupplier reports monotonic elapsed time.
type TimeSupplier interface {
	Elapsed() time.Duration
}

// GameTime is a clock advanced by the host loop, once per step.
// It serves three flavours of time: Normal (scaled by Scale),
// Unscaled, and any number of custom scaled clocks.
//
//	Note: Advance it from the tick thread only.
type GameTime struct {
	// Scale multiplies dt for Normal() and every custom clock.
	// 1 by default, 0 freezes scaled time.
	Scale float64

	normal   clockTotal
	unscaled clockTotal
	custom   []*ScaledClock
	frame    int64
	delta    time.Duration
}

type clockTotal struct {
	total time.Duration
}

func (c *clockTotal) Elapsed() time.Duration { return c.total }

// NewGameTime creates a clock at zero with Scale 1.
func NewGameTime() *GameTime {
	return &GameTime{Scale: 1}
}

// Advance moves every clock forward by dt. Negative dt is ignored.
func (g *GameTime) Advance(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	scaled := scale(dt, g.Scale)
	g.frame++
	g.delta = scaled
	g.unscaled.total += dt
	g.normal.total += scaled
	for _, c := range g.custom {
		c.total += scale(scaled, c.Factor)
	}
}

// Normal is scaled game time.
func (g *GameTime) Normal() TimeSupplier { return &g.normal }

// Unscaled is game time ignoring Scale.
func (g *GameTime) Unscaled() TimeSupplier { return &g.unscaled }

// Frame is the number of Advance calls so far.
func (g *GameTime) Frame() int64 { return g.frame }

// Delta is the scaled dt of the last Advance.
func (g *GameTime) Delta() time.Duration { return g.delta }

// NewScaled creates a clock that runs at factor times Normal().
func (g *GameTime) NewScaled(factor float64) *ScaledClock {
	c := &ScaledClock{Factor: factor}
	g.custom = append(g.custom, c)
	return c
}

// A ScaledClock runs at Factor times its GameTime's normal time.
// Factor may be changed between steps.
type ScaledClock struct {
	Factor float64
	total  time.Duration
}

func (c *ScaledClock) Elapsed() time.Duration { return c.total }

func scale(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return 0
	}
	return time.Duration(float64(d) * factor)
}

// RealTime reads the monotonic wall clock, independent of any host loop.
type RealTime struct {
	start time.Time
}

// NewRealTime creates a wall clock starting at zero now.
func NewRealTime() *RealTime {
	return &RealTime{start: time.Now()}
}

func (r *RealTime) Elapsed() time.Duration {
	return time.Since(r.start)
}
