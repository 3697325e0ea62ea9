package radish_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanema/gween/ease"

	"github.com/nvlled/radish"
)

func TestPauseResumeAdditivity(t *testing.T) {
	clock := radish.NewGameTime()
	timer := radish.NewWaitForDuration(100*time.Millisecond, clock.Normal())

	run := func(d time.Duration) {
		clock.Advance(d)
		timer.Tick()
	}
	idle := func(d time.Duration) {
		timer.Pause()
		clock.Advance(d)
		timer.Tick()
		timer.Resume()
	}

	run(30 * time.Millisecond)
	idle(500 * time.Millisecond)
	run(30 * time.Millisecond)
	assert.Equal(t, 60*time.Millisecond, timer.CurrentTime())

	idle(time.Second)
	timer.Pause()
	timer.Pause()
	timer.Resume()
	run(39 * time.Millisecond)
	assert.False(t, timer.IsComplete(), "99ms of running time")

	run(time.Millisecond)
	assert.True(t, timer.IsComplete())
	assert.Equal(t, 100*time.Millisecond, timer.CurrentTime())
}

func TestPausedTimerKeepsBlocking(t *testing.T) {
	clock := radish.NewGameTime()
	timer := radish.NewWaitForDuration(10*time.Millisecond, clock.Normal())
	timer.Pause()
	assert.True(t, timer.IsPaused())
	clock.Advance(time.Second)

	keep, _ := timer.Tick()
	assert.True(t, keep)
	assert.Equal(t, time.Duration(0), timer.CurrentTime())
}

func TestProgress(t *testing.T) {
	clock := radish.NewGameTime()
	timer := radish.NewWaitForDuration(100*time.Millisecond, clock.Normal())
	assert.Equal(t, 0.0, timer.Progress())

	clock.Advance(50 * time.Millisecond)
	assert.InDelta(t, 0.5, timer.Progress(), 1e-9)
	assert.InDelta(t, 0.5, timer.EasedProgress(ease.Linear), 1e-6)
	assert.InDelta(t, 0.75, timer.EasedProgress(ease.OutQuad), 1e-6)

	clock.Advance(time.Second)
	assert.Equal(t, 1.0, timer.Progress(), "progress is clamped")
}

func TestZeroDuration(t *testing.T) {
	timer := radish.NewWaitForDuration(0, radish.NewGameTime().Normal())
	assert.Equal(t, 0.0, timer.Progress())
	keep, _ := timer.Tick()
	assert.False(t, keep)
	assert.True(t, timer.IsComplete())
	assert.Equal(t, 1.0, timer.Progress())
}

func TestCancelAndReset(t *testing.T) {
	clock := radish.NewGameTime()
	timer := radish.NewWaitForDuration(time.Second, clock.Normal())
	clock.Advance(100 * time.Millisecond)

	timer.Cancel()
	assert.True(t, timer.IsComplete())
	assert.Equal(t, 100*time.Millisecond, timer.CurrentTime())

	timer.Reset()
	assert.False(t, timer.IsComplete())
	assert.Equal(t, time.Duration(0), timer.CurrentTime())
	clock.Advance(time.Second)
	timer.Tick()
	assert.True(t, timer.IsComplete())
}

func TestPooledDurationReuse(t *testing.T) {
	clock := radish.NewGameTime()
	pools := radish.NewPools()

	timer := pools.Duration(10*time.Millisecond, clock.Normal())
	clock.Advance(10 * time.Millisecond)
	keep, _ := timer.Tick()
	assert.False(t, keep)
	timer.Dispose()
	assert.True(t, timer.IsComplete(), "a disposed timer reads as complete")

	fresh := pools.Duration(50*time.Millisecond, clock.Normal())
	assert.False(t, fresh.IsComplete())
	assert.Equal(t, time.Duration(0), fresh.CurrentTime())

	// The release queued when the first timer completed must not touch a reused one.
	pools.Step()
	assert.False(t, fresh.IsComplete())
	assert.Equal(t, 50*time.Millisecond, fresh.Duration())
}

func TestPooledDurationDeferredRelease(t *testing.T) {
	clock := radish.NewGameTime()
	pools := radish.NewPools()

	timer := pools.Duration(10*time.Millisecond, clock.Normal())
	clock.Advance(20 * time.Millisecond)
	timer.Tick()
	assert.True(t, timer.IsComplete())
	assert.Equal(t, 20*time.Millisecond, timer.CurrentTime(), "still readable until the next flush")

	pools.Step()
	assert.Equal(t, time.Duration(0), timer.Duration())
	timer.Reset()
	assert.True(t, timer.IsComplete(), "a released timer cannot be reset")
}

func TestGameTimeScales(t *testing.T) {
	clock := radish.NewGameTime()
	clock.Scale = 0.5
	fast := clock.NewScaled(2)

	clock.Advance(100 * time.Millisecond)
	clock.Advance(-time.Second)

	assert.Equal(t, 50*time.Millisecond, clock.Normal().Elapsed())
	assert.Equal(t, 100*time.Millisecond, clock.Unscaled().Elapsed())
	assert.Equal(t, 100*time.Millisecond, fast.Elapsed())
	assert.Equal(t, int64(2), clock.Frame())
	assert.Equal(t, time.Duration(0), clock.Delta())

	clock.Scale = 0
	clock.Advance(time.Second)
	assert.Equal(t, 50*time.Millisecond, clock.Normal().Elapsed())
}

func TestTween(t *testing.T) {
	clock := radish.NewGameTime()
	var applied []float32
	tw := radish.NewTween(0, 10, 100*time.Millisecond, nil, clock.Normal(), func(v float32) {
		applied = append(applied, v)
	})

	clock.Advance(50 * time.Millisecond)
	keep, _ := tw.Tick()
	assert.True(t, keep)
	assert.InDelta(t, 5, tw.Value(), 1e-3)

	clock.Advance(80 * time.Millisecond)
	keep, _ = tw.Tick()
	assert.False(t, keep)
	assert.True(t, tw.IsComplete())
	assert.InDelta(t, 10, tw.Value(), 1e-3)
	assert.Len(t, applied, 2)

	keep, _ = tw.Tick()
	assert.False(t, keep)
	assert.Len(t, applied, 2, "a finished tween applies nothing")
}

func TestSharedPoolsReleaseOncePerStep(t *testing.T) {
	clock := radish.NewGameTime()
	pools := radish.NewPools()
	a := radish.NewManager(radish.WithPools(pools), radish.WithTime(clock.Normal()))
	b := radish.NewManager(radish.WithPools(pools), radish.WithTime(clock.Normal()))

	timer := pools.Duration(10*time.Millisecond, clock.Normal())
	_, err := a.StartCoroutine(radish.Background, func(ctrl *radish.Control) {
		ctrl.YieldUntil(func() bool {
			keep, _ := timer.Tick()
			return !keep
		})
	})
	require.NoError(t, err)

	pools.Step()
	clock.Advance(frame)
	a.Tick()
	b.Tick()
	assert.True(t, timer.IsComplete())
	assert.Equal(t, 10*time.Millisecond, timer.Duration(), "another manager's tick in the same step keeps it")

	pools.Step()
	assert.Equal(t, time.Duration(0), timer.Duration())
}
