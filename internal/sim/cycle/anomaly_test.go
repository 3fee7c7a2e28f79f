package cycle

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/tuning"
)

func TestDetectAnomaly(t *testing.T) {
	pa := tuning.Defaults().PositionAnomaly

	_, bad := DetectAnomaly(pa, r3.Vec{}, r3.Vec{X: 5.9})
	assert.False(t, bad)

	a, bad := DetectAnomaly(pa, r3.Vec{}, r3.Vec{X: 50})
	require.True(t, bad)
	assert.Equal(t, "distance", a.Reason)
	assert.InDelta(t, 50, a.Distance, 1e-9)

	a, bad = DetectAnomaly(pa, r3.Vec{}, r3.Vec{Y: -3.5})
	require.True(t, bad)
	assert.Equal(t, "vertical", a.Reason)
	assert.InDelta(t, 3.5, a.Vertical, 1e-9)

	pa.Enabled = false
	_, bad = DetectAnomaly(pa, r3.Vec{}, r3.Vec{X: 500})
	assert.False(t, bad)
}

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestAnomalyClearsTrailAndPausesEmission(t *testing.T) {
	e, f := newTestEngine(t, nil)
	s := spawnAt(t, e, f, riderA, r3.Vec{X: 0.5, Y: 1, Z: 0.5}, t0)
	vel := r3.Vec{X: 0.5}

	f.drive(riderA, s, r3.Vec{X: 1.5, Y: 1, Z: 0.5}, vel)
	e.Tick(at(100))
	require.Equal(t, 2, e.LiveSegments())

	f.drive(riderA, s, r3.Vec{X: 51.5, Y: 1, Z: 0.5}, vel)
	e.Tick(at(200))
	assert.Zero(t, e.LiveSegments(), "trail cleared")
	got, ok := e.Session(riderA)
	require.True(t, ok)
	assert.Equal(t, at(3200), got.EmitCooldownUntil)
	assert.Equal(t, r3.Vec{X: 51.5, Y: 1, Z: 0.5}, got.Anchor)
	assert.Equal(t, 1, f.played(EffectAnomaly))
	require.NotEmpty(t, f.events)
	assert.Equal(t, EventAnomaly, f.events[len(f.events)-1].Kind)

	// a normal move inside the cooldown is not emitted
	f.drive(riderA, s, r3.Vec{X: 52.5, Y: 1, Z: 0.5}, vel)
	e.Tick(at(300))
	assert.Zero(t, e.LiveSegments())

	// and the anchor followed, so there is no second anomaly
	assert.Equal(t, 1, f.played(EffectAnomaly))

	f.drive(riderA, s, r3.Vec{X: 53.5, Y: 1, Z: 0.5}, vel)
	e.Tick(at(3300))
	assert.Positive(t, e.LiveSegments())
}

func TestAnomalyWithoutClearOrCooldown(t *testing.T) {
	e, f := newTestEngine(t, func(tu *tuning.Tuning) {
		tu.PositionAnomaly.ClearTrail = false
		tu.PositionAnomaly.DisableCooldown = true
	})
	s := spawnAt(t, e, f, riderA, r3.Vec{X: 0.5, Y: 1, Z: 0.5}, t0)
	vel := r3.Vec{X: 0.5}

	f.drive(riderA, s, r3.Vec{X: 1.5, Y: 1, Z: 0.5}, vel)
	e.Tick(at(100))
	f.drive(riderA, s, r3.Vec{X: 41.5, Y: 1, Z: 0.5}, vel)
	e.Tick(at(200))
	assert.Equal(t, 2, e.LiveSegments())

	got, _ := e.Session(riderA)
	assert.True(t, got.EmitCooldownUntil.IsZero())

	f.drive(riderA, s, r3.Vec{X: 42.5, Y: 1, Z: 0.5}, vel)
	e.Tick(at(300))
	assert.Greater(t, e.LiveSegments(), 2)
}

func TestAnomalyDebugNoticeForOperators(t *testing.T) {
	e, f := newTestEngine(t, nil)
	s := spawnAt(t, e, f, riderA, r3.Vec{X: 0.5, Y: 1, Z: 0.5}, t0)

	f.drive(riderA, s, r3.Vec{X: 30.5, Y: 1, Z: 0.5}, r3.Vec{})
	e.Tick(at(100))
	for _, n := range f.notes[riderA] {
		assert.NotContains(t, n, "debug")
	}

	f.owners[riderA].Operator = true
	f.drive(riderA, s, r3.Vec{X: 0.5, Y: 1, Z: 0.5}, r3.Vec{})
	e.Tick(at(200))
	var debug []string
	for _, n := range f.notes[riderA] {
		if strings.HasPrefix(n, "LightCycle debug:") {
			debug = append(debug, n)
		}
	}
	require.Len(t, debug, 2)
	assert.Contains(t, debug[0], "Δ=30.00")
	assert.Contains(t, debug[1], "paused for 3.0s")
}

func TestSampleCapPolicy(t *testing.T) {
	run := func(policy tuning.CapPolicy) (*Engine, *fakeEnv) {
		e, f := newTestEngine(t, func(tu *tuning.Tuning) { tu.LagCompensation.OnCap = policy })
		s := spawnAt(t, e, f, riderA, r3.Vec{X: 0.5, Y: 1, Z: 0.5}, t0)
		// step clamps to 0.22 at speed 1, so 5 cells needs 23 samples
		f.drive(riderA, s, r3.Vec{X: 5.5, Y: 1, Z: 0.5}, r3.Vec{X: 1})
		e.Tick(at(100))
		return e, f
	}

	e, f := run(tuning.CapTruncate)
	assert.Equal(t, 5, e.LiveSegments()) // samples stop at x=4.46
	assert.Zero(t, f.played(EffectAnomaly))

	e, f = run(tuning.CapAnomaly)
	assert.Zero(t, e.LiveSegments())
	assert.Equal(t, 1, f.played(EffectAnomaly))
}
