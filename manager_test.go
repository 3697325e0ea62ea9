package radish_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvlled/radish"
)

// polledOwner emits no events; the manager has to poll it.
type polledOwner struct {
	active, enabled, destroyed bool
}

func newPolledOwner() *polledOwner {
	return &polledOwner{active: true, enabled: true}
}

func (o *polledOwner) IsActive() bool    { return o.active }
func (o *polledOwner) IsEnabled() bool   { return o.enabled }
func (o *polledOwner) IsDestroyed() bool { return o.destroyed }

func forever(ctrl *radish.Control) {
	ctrl.Abyss()
}

func counter(steps *int) radish.Routine {
	return func(ctrl *radish.Control) {
		for {
			*steps++
			ctrl.Yield()
		}
	}
}

func TestRegistrationErrors(t *testing.T) {
	m := radish.NewManager()

	_, err := m.StartCoroutine(nil, forever)
	assert.ErrorIs(t, err, radish.ErrNilOwner)

	co, err := m.StartCoroutine(radish.Background, forever)
	require.NoError(t, err)
	assert.ErrorIs(t, m.RegisterCoroutine(co), radish.ErrAlreadyRegistered)
	assert.ErrorIs(t, radish.NewManager().RegisterCoroutine(co), radish.ErrAlreadyRegistered)

	co.Cancel()
	assert.ErrorIs(t, m.RegisterCoroutine(co), radish.ErrCoroutineFinished)

	owner := radish.NewEntity("hidden")
	owner.SetActive(false)
	_, err = m.StartCoroutine(owner, forever)
	assert.ErrorIs(t, err, radish.ErrOwnerInactive)
}

func TestTickOrder(t *testing.T) {
	m := radish.NewManager()
	var trace []string
	for _, name := range []string{"a", "b", "c"} {
		_, err := m.StartCoroutine(radish.Background, func(ctrl *radish.Control) {
			for {
				trace = append(trace, name)
				ctrl.Yield()
			}
		})
		require.NoError(t, err)
	}
	m.Tick()
	m.Tick()
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, trace)
}

func TestStartDuringTick(t *testing.T) {
	m := radish.NewManager()
	started := 0
	_, err := m.StartCoroutine(radish.Background, func(ctrl *radish.Control) {
		_, err := m.StartCoroutine(radish.Background, func(ctrl *radish.Control) {
			started++
		})
		if err != nil {
			panic(err)
		}
		ctrl.Abyss()
	})
	require.NoError(t, err)

	m.Tick()
	assert.Equal(t, 0, started, "registered during Tick, first step on the next one")
	m.Tick()
	assert.Equal(t, 1, started)
}

func TestCancelOnDisable(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("enemy")
	steps := 0
	co, err := m.StartCoroutine(owner, counter(&steps), radish.WithDisableMode(radish.CancelOnDisable))
	require.NoError(t, err)
	m.Tick()

	owner.SetEnabled(false)
	assert.Equal(t, radish.Cancelled, co.State())
	assert.Equal(t, 0, m.Len(), "removed the same step")
	assert.Empty(t, m.GetCoroutines(owner))

	m.Tick()
	assert.Equal(t, 1, steps)
}

func TestStopOnDisableResumes(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("door")
	var trace []int
	co, err := m.StartCoroutine(owner, func(ctrl *radish.Control) {
		for i := 0; i < 4; i++ {
			trace = append(trace, i)
			ctrl.Yield()
		}
	}, radish.WithDisableMode(radish.StopOnDisable|radish.ResumeOnEnable))
	require.NoError(t, err)

	m.Tick()
	m.Tick()
	owner.SetEnabled(false)
	assert.Equal(t, radish.Paused, co.State())
	assert.Equal(t, 1, m.Len(), "a paused coroutine stays registered")

	m.Tick()
	m.Tick()
	assert.Equal(t, []int{0, 1}, trace)

	owner.SetEnabled(true)
	assert.Equal(t, radish.Active, co.State())
	tickUntil(t, m, co.IsFinished)
	assert.Equal(t, []int{0, 1, 2, 3}, trace, "continues from the same point")
}

func TestStopOnDisableWithoutResume(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("lamp")
	co, err := m.StartCoroutine(owner, forever, radish.WithDisableMode(radish.StopOnDisable))
	require.NoError(t, err)
	m.Tick()

	owner.SetEnabled(false)
	assert.Equal(t, radish.Inactive, co.State())
	assert.Equal(t, 0, m.Len())

	owner.SetEnabled(true)
	assert.Equal(t, radish.Inactive, co.State(), "only resumable coroutines restart on enable")

	require.NoError(t, m.RegisterCoroutine(co))
	assert.Equal(t, radish.Active, co.State())
}

func TestDefaultDisablePolicy(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("npc")
	steps := 0
	co, err := m.StartCoroutine(owner, counter(&steps))
	require.NoError(t, err)
	m.Tick()

	owner.SetEnabled(false)
	m.Tick()
	assert.Equal(t, radish.Active, co.State(), "a disabled component keeps running")
	assert.Equal(t, 2, steps)

	owner.SetEnabled(true)
	owner.SetActive(false)
	assert.Equal(t, radish.Cancelled, co.State(), "a deactivated hierarchy cancels")
}

func TestDeactivateAfterDisable(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("guard")
	steps := 0
	co, err := m.StartCoroutine(owner, counter(&steps))
	require.NoError(t, err)
	stopper, err := m.StartCoroutine(owner, forever, radish.WithDisableMode(radish.StopOnDeactivate))
	require.NoError(t, err)
	m.Tick()

	owner.SetEnabled(false)
	m.Tick()
	require.Equal(t, radish.Active, co.State())
	require.Equal(t, 2, steps)

	owner.SetActive(false)
	assert.Equal(t, radish.Cancelled, co.State(), "deactivation applies to an already disabled owner")
	assert.Equal(t, radish.Inactive, stopper.State())

	m.Tick()
	m.Tick()
	assert.Equal(t, 2, steps)
	assert.Equal(t, 0, m.Len())
}

func TestPolledDeactivateAfterDisable(t *testing.T) {
	m := radish.NewManager()
	owner := newPolledOwner()
	steps := 0
	co, err := m.StartCoroutine(owner, counter(&steps))
	require.NoError(t, err)
	m.Tick()

	owner.enabled = false
	m.Tick()
	require.Equal(t, radish.Active, co.State())
	require.Equal(t, 2, steps)

	owner.active = false
	m.Tick()
	assert.Equal(t, radish.Cancelled, co.State())
	assert.Equal(t, 2, steps)
}

func TestStopOnDeactivate(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("camera")
	resumable, err := m.StartCoroutine(owner, forever,
		radish.WithDisableMode(radish.StopOnDeactivate|radish.ResumeOnEnable))
	require.NoError(t, err)
	stopped, err := m.StartCoroutine(owner, forever, radish.WithDisableMode(radish.StopOnDeactivate))
	require.NoError(t, err)
	m.Tick()

	owner.SetEnabled(false)
	assert.Equal(t, radish.Active, resumable.State(), "StopOnDeactivate ignores a disabled component")

	owner.SetEnabled(true)
	owner.SetActive(false)
	assert.Equal(t, radish.Paused, resumable.State())
	assert.Equal(t, radish.Inactive, stopped.State())

	owner.SetActive(true)
	assert.Equal(t, radish.Active, resumable.State())
}

func TestOwnerDestroyed(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("crate")
	clock := radish.NewGameTime()
	timer := radish.NewWaitForDuration(time.Second, clock.Normal())

	var finished []radish.OperatingState
	co, err := m.StartCoroutine(owner, []any{timer},
		radish.WithDisableMode(radish.StopOnDisable|radish.ResumeOnEnable))
	require.NoError(t, err)
	other, err := m.StartCoroutine(owner, forever)
	require.NoError(t, err)
	require.NoError(t, co.OnFinished(func(c *radish.Coroutine) { finished = append(finished, c.State()) }))
	m.Tick()

	owner.Destroy()
	assert.Equal(t, radish.Cancelled, co.State())
	assert.Equal(t, radish.Cancelled, other.State())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, []radish.OperatingState{radish.Cancelled}, finished)
	assert.False(t, timer.IsComplete(), "no graceful cancel for a destroyed owner")
}

func TestPolledOwner(t *testing.T) {
	m := radish.NewManager()
	owner := newPolledOwner()
	steps := 0
	co, err := m.StartCoroutine(owner, counter(&steps),
		radish.WithDisableMode(radish.StopOnDisable|radish.ResumeOnEnable))
	require.NoError(t, err)

	m.Tick()
	owner.enabled = false
	m.Tick()
	assert.Equal(t, radish.Paused, co.State(), "the transition is found by polling")
	assert.Equal(t, 1, steps)

	owner.enabled = true
	m.Tick()
	assert.Equal(t, radish.Active, co.State())
	assert.Equal(t, 2, steps)

	owner.destroyed = true
	m.Tick()
	assert.Equal(t, radish.Cancelled, co.State())
	assert.Equal(t, 2, steps)
	assert.Equal(t, 0, m.Len())
}

func TestPushedTransitions(t *testing.T) {
	m := radish.NewManager()
	owner := newPolledOwner()
	co, err := m.StartCoroutine(owner, forever, radish.WithDisableMode(radish.CancelOnDisable))
	require.NoError(t, err)

	owner.enabled = false
	m.OwnerDisabled(owner)
	assert.Equal(t, radish.Cancelled, co.State())

	owner.enabled = true
	second, err := m.StartCoroutine(owner, forever)
	require.NoError(t, err)
	m.OwnerDestroyed(owner)
	assert.Equal(t, radish.Cancelled, second.State())
}

func TestAutoKillToken(t *testing.T) {
	m := radish.NewManager()
	owner := radish.NewEntity("hero")

	a, err := m.StartCoroutine(owner, forever, radish.WithToken("move"))
	require.NoError(t, err)
	m.Tick()
	assert.Equal(t, radish.Active, a.State())

	b, err := m.StartCoroutine(owner, forever, radish.WithToken("move"))
	require.NoError(t, err)
	assert.Equal(t, radish.Cancelled, a.State())
	assert.Equal(t, radish.Active, b.State())

	c, err := radish.NewCoroutine(owner, forever)
	require.NoError(t, err)
	require.NoError(t, m.RegisterCoroutineWithToken(c, "move"))
	assert.Equal(t, radish.Cancelled, b.State())
	assert.Equal(t, "move", c.Token())

	other, err := m.StartCoroutine(owner, forever, radish.WithToken("jump"))
	require.NoError(t, err)
	assert.Equal(t, radish.Active, other.State())
	assert.Equal(t, 2, m.Len())
}

func TestQueries(t *testing.T) {
	m := radish.NewManager()
	first, second := radish.NewEntity("first"), radish.NewEntity("second")

	a, _ := m.StartCoroutine(first, forever)
	b, _ := m.StartCoroutine(first, forever, radish.WithToken("b"))
	c, _ := m.StartCoroutine(second, forever)

	assert.Equal(t, []*radish.Coroutine{a, b}, m.GetCoroutines(first))
	assert.Same(t, b, m.Find(func(co *radish.Coroutine) bool { return co.Token() == "b" }))
	assert.Nil(t, m.Find(func(co *radish.Coroutine) bool { return co.Token() == "z" }))
	assert.Equal(t, []*radish.Coroutine{c}, m.FindAll(func(co *radish.Coroutine) bool { return co.Owner() == second }))

	m.CancelAll(first)
	assert.Equal(t, 1, m.Len())
	assert.True(t, a.IsFinished())
	assert.True(t, b.IsFinished())

	assert.True(t, m.UnregisterCoroutine(c))
	assert.False(t, m.UnregisterCoroutine(c))
	assert.Equal(t, radish.Inactive, c.State())
	assert.Equal(t, 0, m.Len())
}

func TestLifecycleHandlerPanicIsContained(t *testing.T) {
	var buf bytes.Buffer
	m := radish.NewManager(radish.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	owner := radish.NewEntity("fragile")

	co, err := m.StartCoroutine(owner, forever, radish.WithDisableMode(radish.CancelOnDisable))
	require.NoError(t, err)
	require.NoError(t, co.OnFinished(func(*radish.Coroutine) { panic("listener failed") }))
	other, err := m.StartCoroutine(owner, forever, radish.WithDisableMode(radish.CancelOnDisable))
	require.NoError(t, err)

	assert.NotPanics(t, func() { owner.SetEnabled(false) })
	assert.Equal(t, radish.Cancelled, co.State())
	assert.Equal(t, radish.Cancelled, other.State())
	assert.Contains(t, buf.String(), "listener failed")
}

func TestManagerIdentityInLogs(t *testing.T) {
	var buf bytes.Buffer
	m := radish.NewManager(radish.WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))))
	_, err := m.StartCoroutine(radish.Background, forever)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "manager="+m.ID().String())
}

func TestSleepPausesWithOwner(t *testing.T) {
	script := radish.NewScript(radish.DefaultConfig())
	owner := radish.NewEntity("bomb")
	exploded := false
	_, err := script.Start(owner, func(ctrl *radish.Control) {
		ctrl.Sleep(100 * time.Millisecond)
		exploded = true
	}, radish.WithDisableMode(radish.StopOnDisable|radish.ResumeOnEnable))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		script.Update(frame)
	}
	owner.SetEnabled(false)
	for i := 0; i < 100; i++ {
		script.Update(frame)
	}
	assert.False(t, exploded, "paused time does not count")

	owner.SetEnabled(true)
	for i := 0; i < 10 && !exploded; i++ {
		script.Update(frame)
	}
	assert.True(t, exploded)
}

func TestSleepAfterDisablingOwnOwner(t *testing.T) {
	script := radish.NewScript(radish.DefaultConfig())
	owner := radish.NewEntity("trap")
	woke := false
	co, err := script.Start(owner, func(ctrl *radish.Control) {
		owner.SetEnabled(false)
		ctrl.Sleep(time.Second)
		woke = true
	}, radish.WithDisableMode(radish.StopOnDisable|radish.ResumeOnEnable))
	require.NoError(t, err)

	script.Update(frame)
	require.Equal(t, radish.Paused, co.State())
	for i := 0; i < 3; i++ {
		script.Update(time.Second)
	}
	assert.False(t, woke)

	owner.SetEnabled(true)
	for i := 0; i < 9; i++ {
		script.Update(100 * time.Millisecond)
	}
	assert.False(t, woke, "time spent paused does not count")
	script.Update(100 * time.Millisecond)
	assert.True(t, woke)
}
