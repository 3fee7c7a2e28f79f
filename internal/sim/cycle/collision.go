package cycle

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/mathx"
	"lightcycle.ai/internal/sim/trail"
	"lightcycle.ai/internal/sim/voxel"
)

const (
	trailMinSpeed  = 0.05
	wallFirstReach = 0.35
	wallReachStep  = 0.25
)

var lateralOffsets = []r3.Vec{{}, {X: 0.3, Z: 0.3}, {X: -0.3, Z: -0.3}}

// TrailLookahead returns the points ahead of pos checked against live trails.
func TrailLookahead(pos, velocity r3.Vec) []r3.Vec {
	speed := r3.Norm(velocity)
	if speed < trailMinSpeed {
		return nil
	}
	d := mathx.Clamp(0.7+speed*1.2, 0.7, 2.5)
	ahead := r3.Add(pos, r3.Scale(d, r3.Unit(velocity)))
	out := make([]r3.Vec, 0, len(lateralOffsets))
	for _, off := range lateralOffsets {
		out = append(out, r3.Add(ahead, off))
	}
	return out
}

// WallLookahead returns the points marched along the heading for the world-wall
// check; slow vehicles get none.
func WallLookahead(pos, velocity r3.Vec, threshold float64) []r3.Vec {
	speed := r3.Norm(velocity)
	if speed < threshold || speed == 0 {
		return nil
	}
	limit := mathx.Clamp(0.9+speed*1.1, 0.9, 3.0)
	fwd := r3.Unit(velocity)
	var out []r3.Vec
	for i := 0; ; i++ {
		d := wallFirstReach + float64(i)*wallReachStep
		if d > limit+1e-9 {
			break
		}
		out = append(out, r3.Add(pos, r3.Scale(d, fwd)))
	}
	return out
}

// selfImmune reports whether owner may drive through e without crashing.
func selfImmune(owner uuid.UUID, e trail.IndexEntry, now time.Time, window time.Duration) bool {
	return e.Owner == owner && now.Sub(e.PlacedAt) <= window
}

// trailHit checks the segment index ahead of the vehicle, base and one above.
func (e *Engine) trailHit(s *Session, veh VehicleState, now time.Time) (trail.IndexEntry, bool) {
	window := e.tun.SelfImmunity()
	for _, p := range TrailLookahead(veh.Pos, veh.Velocity) {
		cell := voxel.Floor(p)
		for dy := 0; dy <= 1; dy++ {
			entry, ok := e.store.Lookup(trail.CellKey{World: veh.World, Pos: cell.Up(dy)})
			if !ok {
				continue
			}
			if !selfImmune(s.Owner, entry, now, window) {
				return entry, true
			}
		}
	}
	return trail.IndexEntry{}, false
}

// wallHit marches the raw world ahead of the vehicle. Unreadable cells count as
// open, and cells held by live trails are left to trailHit.
func (e *Engine) wallHit(veh VehicleState) (voxel.Pos, bool) {
	for _, p := range WallLookahead(veh.Pos, veh.Velocity, e.tun.Crash.WorldWallSpeedThreshold) {
		cell := voxel.Floor(p)
		for dy := 0; dy <= 1; dy++ {
			at := cell.Up(dy)
			if _, ok := e.store.Lookup(trail.CellKey{World: veh.World, Pos: at}); ok {
				continue
			}
			c, err := e.env.Cells.Cell(veh.World, at)
			if err != nil {
				continue
			}
			if e.env.Cells.Solid(c) && !e.env.Cells.Replaceable(c) {
				return at, true
			}
		}
	}
	return voxel.Pos{}, false
}
