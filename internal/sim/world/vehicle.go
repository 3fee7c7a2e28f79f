package world

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/voxel"
)

// mountReach is how close a rider must be to climb onto their vehicle.
const mountReach = 3.0

// Vehicle is a lightcycle body. Velocity is in cells per game tick.
type Vehicle struct {
	ID    uuid.UUID
	Owner uuid.UUID
	Realm *realm

	Pos      r3.Vec
	Vel      r3.Vec
	Yaw      float64
	Throttle float64

	Color voxel.Color
	Glow  bool
	Alive bool
	Rider uuid.UUID
}

func (w *World) moveVehicles() {
	maxSpeed := w.tun.Cycle.MaxSpeed
	for _, id := range sortedKeys(w.vehicles) {
		v := w.vehicles[id]
		if !v.Alive {
			continue
		}
		if v.Rider == uuid.Nil {
			v.Vel = r3.Scale(0.5, v.Vel)
			if r3.Norm(v.Vel) < 0.01 {
				v.Vel = r3.Vec{}
			}
		} else {
			v.Vel = r3.Scale(clampThrottle(v.Throttle)*maxSpeed, heading(v.Yaw))
		}
		var blocked bool
		v.Pos, blocked = advance(v.Realm, v.Pos, v.Vel)
		if blocked {
			v.Vel = r3.Vec{}
		}
		v.Pos = fall(v.Realm, v.Pos)
	}
}

func (w *World) mount(r *Rider) bool {
	for _, id := range sortedKeys(w.vehicles) {
		v := w.vehicles[id]
		if v.Owner != r.ID || !v.Alive || v.Rider != uuid.Nil || v.Realm != r.Realm {
			continue
		}
		if r3.Norm(r3.Sub(v.Pos, r.Pos)) > mountReach {
			continue
		}
		v.Rider = r.ID
		v.Throttle = r.Throttle
		r.Vehicle = v.ID
		r.Pos = v.Pos
		return true
	}
	return false
}

// dismount steps the rider off to the side of the vehicle.
func (w *World) dismount(r *Rider) {
	v, ok := w.vehicles[r.Vehicle]
	r.Vehicle = uuid.Nil
	if !ok {
		return
	}
	v.Rider = uuid.Nil
	side := heading(v.Yaw + 90)
	if next, blocked := advance(v.Realm, v.Pos, side); !blocked {
		r.Pos = next
	} else {
		r.Pos = v.Pos
	}
}
