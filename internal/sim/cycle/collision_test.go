package cycle

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/trail"
	"lightcycle.ai/internal/sim/tuning"
	"lightcycle.ai/internal/sim/voxel"
)

func TestTrailLookahead(t *testing.T) {
	pts := TrailLookahead(r3.Vec{}, r3.Vec{X: 0.5})
	require.Len(t, pts, 3)
	assert.InDelta(t, 1.3, pts[0].X, 1e-9)
	assert.InDelta(t, 1.6, pts[1].X, 1e-9)
	assert.InDelta(t, 0.3, pts[1].Z, 1e-9)
	assert.InDelta(t, 1.0, pts[2].X, 1e-9)
	assert.InDelta(t, -0.3, pts[2].Z, 1e-9)

	far := TrailLookahead(r3.Vec{}, r3.Vec{Z: 5})
	assert.InDelta(t, 2.5, far[0].Z, 1e-9)

	assert.Nil(t, TrailLookahead(r3.Vec{}, r3.Vec{X: 0.04}))
}

func TestWallLookahead(t *testing.T) {
	pts := WallLookahead(r3.Vec{}, r3.Vec{X: 1}, 0.75)
	require.Len(t, pts, 7)
	assert.InDelta(t, 0.35, pts[0].X, 1e-9)
	assert.InDelta(t, 1.85, pts[6].X, 1e-9)

	pts = WallLookahead(r3.Vec{}, r3.Vec{X: 3}, 0.75)
	require.Len(t, pts, 11)
	assert.InDelta(t, 2.85, pts[10].X, 1e-9)

	assert.Nil(t, WallLookahead(r3.Vec{}, r3.Vec{X: 0.7}, 0.75))
}

// trailAhead places a segment directly in the store, in the cell the forward
// point of a vehicle at (10.5,1,0.5) moving +x at 0.5 lands on.
func trailAhead(t *testing.T, e *Engine, owner uuid.UUID, baseY int, placed time.Time) trail.Segment {
	t.Helper()
	seg := trail.Segment{
		Key:       trail.CellKey{World: gridWorld, Pos: voxel.Pos{X: 11, Y: baseY, Z: 0}},
		PlacedAt:  placed,
		Owner:     owner,
		Color:     voxel.Blue,
		OrigBase:  voxel.AirCell(),
		OrigAbove: voxel.AirCell(),
	}
	require.NoError(t, e.store.Put(seg))
	return seg
}

func TestSelfImmunityWindow(t *testing.T) {
	pos := r3.Vec{X: 10.5, Y: 1, Z: 0.5}
	tests := []struct {
		name  string
		owner uuid.UUID
		age   time.Duration
		baseY int
		crash bool
	}{
		{"own fresh trail", riderA, 100 * time.Millisecond, 1, false},
		{"own trail at window edge", riderA, 1500 * time.Millisecond, 1, false},
		{"own old trail", riderA, 2 * time.Second, 1, true},
		{"foreign fresh trail", riderB, 100 * time.Millisecond, 1, true},
		{"foreign trail one below", riderB, 100 * time.Millisecond, 0, true},
		{"foreign trail one above", riderB, 100 * time.Millisecond, 2, true},
		{"foreign trail out of reach", riderB, 100 * time.Millisecond, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, f := newTestEngine(t, nil)
			s := spawnAt(t, e, f, riderA, pos, t0)
			now := at(2500)
			trailAhead(t, e, tt.owner, tt.baseY, now.Add(-tt.age))

			f.drive(riderA, s, pos, r3.Vec{X: 0.5})
			e.Tick(now)

			_, alive := e.Session(riderA)
			assert.Equal(t, !tt.crash, alive)
			if tt.crash {
				assert.Equal(t, 10.0, f.damage[riderA])
				assert.Equal(t, 1, f.played(EffectCrash))
				assert.Zero(t, f.played(EffectDerez))
				assert.Empty(t, e.store.OwnerKeys(riderA))
				assert.NotContains(t, f.vehicles, s.Vehicle)
			}
		})
	}
}

func TestInstantKill(t *testing.T) {
	e, f := newTestEngine(t, func(tu *tuning.Tuning) { tu.Crash.InstantKill = true })
	pos := r3.Vec{X: 10.5, Y: 1, Z: 0.5}
	s := spawnAt(t, e, f, riderA, pos, t0)
	trailAhead(t, e, riderB, 1, t0)

	f.drive(riderA, s, pos, r3.Vec{X: 0.5})
	e.Tick(at(100))
	assert.True(t, f.killed[riderA])
	assert.Zero(t, f.damage[riderA])
}

func TestWorldWallCollision(t *testing.T) {
	pos := r3.Vec{X: 10.5, Y: 1, Z: 0.5}
	wall := voxel.Pos{X: 12, Y: 1, Z: 0}

	t.Run("fast into stone", func(t *testing.T) {
		e, f := newTestEngine(t, nil)
		s := spawnAt(t, e, f, riderA, pos, t0)
		require.NoError(t, f.SetCell(gridWorld, wall, voxel.Cell{Material: voxel.Stone}))
		f.drive(riderA, s, pos, r3.Vec{X: 1})
		e.Tick(at(100))
		_, alive := e.Session(riderA)
		assert.False(t, alive)
		assert.Equal(t, EventCrash, f.events[len(f.events)-2].Kind)
		assert.Equal(t, "wall", f.events[len(f.events)-2].Detail)
	})

	t.Run("slow against stone", func(t *testing.T) {
		e, f := newTestEngine(t, nil)
		s := spawnAt(t, e, f, riderA, pos, t0)
		require.NoError(t, f.SetCell(gridWorld, wall.Add(-1, 0, 0), voxel.Cell{Material: voxel.Stone}))
		f.drive(riderA, s, pos, r3.Vec{X: 0.7})
		e.Tick(at(100))
		_, alive := e.Session(riderA)
		assert.True(t, alive)
	})

	t.Run("replaceable foliage is not a wall", func(t *testing.T) {
		e, f := newTestEngine(t, nil)
		s := spawnAt(t, e, f, riderA, pos, t0)
		require.NoError(t, f.SetCell(gridWorld, wall, voxel.Cell{Material: voxel.TallGrass}))
		f.drive(riderA, s, pos, r3.Vec{X: 1})
		e.Tick(at(100))
		_, alive := e.Session(riderA)
		assert.True(t, alive)
	})

	t.Run("unreadable cell is open", func(t *testing.T) {
		e, f := newTestEngine(t, nil)
		s := spawnAt(t, e, f, riderA, pos, t0)
		f.unreadable[wall] = true
		f.drive(riderA, s, pos, r3.Vec{X: 1})
		e.Tick(at(100))
		_, alive := e.Session(riderA)
		assert.True(t, alive)
	})

	t.Run("own fresh pane is left to the trail check", func(t *testing.T) {
		e, f := newTestEngine(t, nil)
		s := spawnAt(t, e, f, riderA, pos, t0)
		seg := trailAhead(t, e, riderA, 1, at(50))
		require.NoError(t, e.render.Place(seg))
		c, _ := f.Cell(gridWorld, seg.Key.Pos)
		require.True(t, c.Material.IsPane())

		f.drive(riderA, s, pos, r3.Vec{X: 1})
		e.Tick(at(100))
		_, alive := e.Session(riderA)
		assert.True(t, alive)
	})
}
