package world

import (
	"encoding/json"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/protocol"
	"lightcycle.ai/internal/sim/terrain"
	"lightcycle.ai/internal/sim/voxel"
)

// maxPendingEffects bounds the effects kept for a client that is not draining.
const maxPendingEffects = 256

type clientState struct {
	Out chan []byte

	cells   []protocol.CellObs
	cellIdx map[voxel.Pos]int
	effects []protocol.EffectObs
	notices []string
}

func newClientState(out chan []byte) *clientState {
	return &clientState{Out: out, cellIdx: map[voxel.Pos]int{}}
}

// queueCell records the latest state of p for the next observation; a later
// update of the same position replaces an earlier one.
func (c *clientState) queueCell(p voxel.Pos, cell voxel.Cell, override bool) {
	obs := protocol.CellObs{
		Pos:      [3]int{p.X, p.Y, p.Z},
		Material: cell.Material.String(),
		Faces:    uint8(cell.Faces),
		Level:    cell.Level,
		Override: override,
	}
	if i, ok := c.cellIdx[p]; ok {
		c.cells[i] = obs
		return
	}
	c.cellIdx[p] = len(c.cells)
	c.cells = append(c.cells, obs)
}

func (c *clientState) queueEffect(ev protocol.EffectObs) {
	if len(c.effects) >= maxPendingEffects {
		c.effects = c.effects[1:]
	}
	c.effects = append(c.effects, ev)
}

func (c *clientState) resetCells() {
	c.cells = nil
	c.cellIdx = map[voxel.Pos]int{}
}

func (c *clientState) clear() {
	c.resetCells()
	c.effects = nil
	c.notices = nil
}

// syncCells queues every edited cell of the loaded chunks around r.
func (w *World) syncCells(r *Rider, c *clientState) {
	radius := w.cfg.ViewRadius
	center := voxel.Floor(r.Pos)
	lo := terrain.KeyFor(center.X-radius, center.Z-radius)
	hi := terrain.KeyFor(center.X+radius, center.Z+radius)
	for _, k := range r.Realm.chunks.LoadedChunkKeys() {
		if k.CX < lo.CX || k.CX > hi.CX || k.CZ < lo.CZ || k.CZ > hi.CZ {
			continue
		}
		for _, ch := range r.Realm.chunks.Changes(k) {
			c.queueCell(ch.Pos, ch.Cell, false)
		}
	}
}

func (w *World) flushObs(tick uint64) {
	for _, id := range sortedKeys(w.clients) {
		c := w.clients[id]
		r, ok := w.riders[id]
		if !ok {
			continue
		}
		b, err := json.Marshal(w.buildObs(r, c, tick))
		if err != nil {
			w.log.Error().Err(err).Str("rider", r.Name).Msg("marshal obs")
			continue
		}
		// Undelivered observations keep their pending cells for the next try.
		if trySend(c.Out, b) {
			c.clear()
		}
	}
}

func (w *World) buildObs(r *Rider, c *clientState, tick uint64) protocol.ObsMsg {
	obs := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		OwnerID:         r.ID.String(),
		World:           r.Realm.Name,
		Self: protocol.SelfObs{
			Pos:     vec3(r.Pos),
			Yaw:     r.Yaw,
			HP:      r.HP,
			Mounted: r.Mounted(),
		},
		Riders:  []protocol.RiderObs{},
		Cells:   c.cells,
		Effects: c.effects,
		Notices: c.notices,
	}
	if s, ok := w.engine.Session(r.ID); ok {
		co := &protocol.CycleObs{
			VehicleID: s.Vehicle.String(),
			Color:     s.Color.String(),
			Emit:      s.Emit,
			State:     s.State().String(),
		}
		if v, ok := w.vehicles[s.Vehicle]; ok {
			co.Pos = vec3(v.Pos)
			co.Speed = r3.Norm(v.Vel)
		}
		obs.Self.Cycle = co
	}
	radius := float64(w.cfg.ViewRadius)
	for _, id := range sortedKeys(w.riders) {
		o := w.riders[id]
		if id == r.ID || o.Realm != r.Realm || r3.Norm(r3.Sub(o.Pos, r.Pos)) > radius {
			continue
		}
		ro := protocol.RiderObs{
			ID:      id.String(),
			Name:    o.Name,
			Pos:     vec3(o.Pos),
			Yaw:     o.Yaw,
			Mounted: o.Mounted(),
		}
		if v, ok := w.vehicles[o.Vehicle]; ok && o.Vehicle != uuid.Nil {
			ro.Color = v.Color.String()
			ro.Glow = v.Glow
		}
		obs.Riders = append(obs.Riders, ro)
	}
	return obs
}
