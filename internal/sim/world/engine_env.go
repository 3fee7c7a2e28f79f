package world

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/protocol"
	"lightcycle.ai/internal/sim/cycle"
	"lightcycle.ai/internal/sim/voxel"
)

// The World is the trail engine's host: it satisfies every interface the
// engine consumes except preferences and the journal.
var (
	_ cycle.Cells   = (*World)(nil)
	_ cycle.Mobiles = (*World)(nil)
	_ cycle.Viewers = (*World)(nil)
	_ cycle.Effects = (*World)(nil)
)

var errUnknownRealm = errors.New("world: unknown realm")

func (w *World) Cell(world uuid.UUID, p voxel.Pos) (voxel.Cell, error) {
	r, ok := w.realms[world]
	if !ok {
		return voxel.Cell{}, errUnknownRealm
	}
	return r.chunks.GetCell(p)
}

func (w *World) SetCell(world uuid.UUID, p voxel.Pos, c voxel.Cell) error {
	r, ok := w.realms[world]
	if !ok {
		return errUnknownRealm
	}
	if err := r.chunks.SetCell(p, c); err != nil {
		return err
	}
	w.broadcastCell(r, p, c)
	return nil
}

func (w *World) Replaceable(c voxel.Cell) bool { return w.replaceable[c.Material] }
func (w *World) Solid(c voxel.Cell) bool       { return c.Material.Solid() }

func (w *World) Owner(id uuid.UUID) (cycle.OwnerState, bool) {
	r, ok := w.riders[id]
	if !ok {
		return cycle.OwnerState{}, false
	}
	return cycle.OwnerState{
		ID:        r.ID,
		Online:    true,
		World:     r.Realm.ID,
		WorldName: r.Realm.Name,
		Pos:       r.Pos,
		Operator:  r.Operator,
	}, true
}

func (w *World) Vehicle(id uuid.UUID) (cycle.VehicleState, bool) {
	v, ok := w.vehicles[id]
	if !ok {
		return cycle.VehicleState{}, false
	}
	st := cycle.VehicleState{
		ID:        v.ID,
		World:     v.Realm.ID,
		WorldName: v.Realm.Name,
		Pos:       v.Pos,
		Velocity:  v.Vel,
		Alive:     v.Alive,
	}
	if v.Rider != uuid.Nil {
		st.Passengers = []uuid.UUID{v.Rider}
	}
	return st, true
}

func (w *World) SpawnVehicle(owner uuid.UUID, color voxel.Color) (uuid.UUID, error) {
	r, ok := w.riders[owner]
	if !ok {
		return uuid.Nil, fmt.Errorf("spawn vehicle: rider %s not online", owner)
	}
	if r.Mounted() {
		w.dismount(r)
	}
	w.nextVehicle++
	v := &Vehicle{
		ID:       uuid.NewSHA1(owner, []byte(strconv.FormatUint(w.nextVehicle, 10))),
		Owner:    owner,
		Realm:    r.Realm,
		Pos:      r.Pos,
		Yaw:      r.Yaw,
		Throttle: r.Throttle,
		Color:    color,
		Alive:    true,
		Rider:    owner,
	}
	w.vehicles[v.ID] = v
	r.Vehicle = v.ID
	return v.ID, nil
}

func (w *World) RemoveVehicle(id uuid.UUID) {
	v, ok := w.vehicles[id]
	if !ok {
		return
	}
	if r, ok := w.riders[v.Rider]; ok && r.Vehicle == id {
		r.Vehicle = uuid.Nil
		r.Pos = v.Pos
	}
	delete(w.vehicles, id)
}

func (w *World) SetGlow(vehicle uuid.UUID, color voxel.Color, on bool) {
	if v, ok := w.vehicles[vehicle]; ok {
		v.Color, v.Glow = color, on
	}
}

func (w *World) ViewersNear(world uuid.UUID, center r3.Vec, radius float64) []uuid.UUID {
	var out []uuid.UUID
	for id, r := range w.riders {
		if _, online := w.clients[id]; !online || r.Realm.ID != world {
			continue
		}
		if r3.Norm(r3.Sub(r.Pos, center)) <= radius {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (w *World) ViewerPos(viewer uuid.UUID) (uuid.UUID, r3.Vec, bool) {
	r, ok := w.riders[viewer]
	if !ok {
		return uuid.Nil, r3.Vec{}, false
	}
	return r.Realm.ID, r.Pos, true
}

func (w *World) SendOverride(viewer, world uuid.UUID, p voxel.Pos, c voxel.Cell) {
	w.queueCell(viewer, world, p, c, true)
}

func (w *World) SendReal(viewer, world uuid.UUID, p voxel.Pos, c voxel.Cell) {
	w.queueCell(viewer, world, p, c, false)
}

func (w *World) queueCell(viewer, world uuid.UUID, p voxel.Pos, c voxel.Cell, override bool) {
	r, ok := w.riders[viewer]
	if !ok || r.Realm.ID != world {
		return
	}
	if cl, ok := w.clients[viewer]; ok {
		cl.queueCell(p, c, override)
	}
}

func (w *World) broadcastCell(rl *realm, p voxel.Pos, c voxel.Cell) {
	radius := float64(w.cfg.ViewRadius)
	for _, id := range w.ViewersNear(rl.ID, p.Vec(), radius) {
		w.clients[id].queueCell(p, c, false)
	}
}

func (w *World) Play(world uuid.UUID, pos r3.Vec, effect cycle.Effect, color voxel.Color) {
	ev := protocol.EffectObs{Effect: string(effect), Pos: vec3(pos), Color: color.String()}
	for _, id := range w.ViewersNear(world, pos, float64(w.cfg.ViewRadius)) {
		w.clients[id].queueEffect(ev)
	}
}

func (w *World) Damage(owner uuid.UUID, amount float64, _ uuid.UUID) {
	r, ok := w.riders[owner]
	if !ok || r.HP <= 0 {
		return
	}
	r.HP -= amount
	if r.HP <= 0 {
		r.HP = 0
		w.deaths = append(w.deaths, owner)
	}
}

func (w *World) Kill(owner uuid.UUID) {
	w.Damage(owner, w.cfg.MaxHP+1, uuid.Nil)
}

func (w *World) Notify(owner uuid.UUID, text string) {
	if c, ok := w.clients[owner]; ok {
		c.notices = append(c.notices, text)
	}
}

func vec3(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
