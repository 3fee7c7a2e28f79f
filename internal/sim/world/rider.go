package world

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/protocol"
	"lightcycle.ai/internal/sim/voxel"
)

// Rider is a connected player. Mounted riders move with their vehicle.
type Rider struct {
	ID       uuid.UUID
	Name     string
	Operator bool

	Realm    *realm
	Pos      r3.Vec
	Yaw      float64
	Throttle float64
	HP       float64

	Vehicle uuid.UUID
}

func (r *Rider) Mounted() bool { return r.Vehicle != uuid.Nil }

func (w *World) handleJoin(req JoinRequest) {
	resp := w.joinRider(req)
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (w *World) joinRider(req JoinRequest) JoinResponse {
	name := req.Name
	if normalizeName(name) == "" {
		name = "rider"
	}
	id := OwnerID(name)
	if _, dup := w.riders[id]; dup {
		return JoinResponse{Code: protocol.ErrConflict, Message: "name already online"}
	}
	rl, ok := w.realmNamed(w.cfg.DefaultRealm)
	if req.World != "" {
		rl, ok = w.realmNamed(req.World)
	}
	if !ok {
		return JoinResponse{Code: protocol.ErrWorldNotFound, Message: "unknown world " + req.World}
	}

	r := &Rider{
		ID:       id,
		Name:     name,
		Operator: w.cfg.OperatorToken != "" && req.Token == w.cfg.OperatorToken,
		Realm:    rl,
		HP:       w.cfg.MaxHP,
	}
	r.Pos = w.spawnFor(rl, id)
	w.riders[id] = r
	if req.Out != nil {
		c := newClientState(req.Out)
		w.clients[id] = c
		w.syncCells(r, c)
	}
	w.engine.OnOwnerJoin(id)
	w.log.Info().Str("rider", name).Str("id", id.String()).Str("realm", rl.Name).Bool("operator", r.Operator).Msg("rider joined")

	return JoinResponse{Welcome: w.welcome(r)}
}

func (w *World) welcome(r *Rider) protocol.WelcomeMsg {
	gen := r.Realm.chunks.Gen
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		OwnerID:         r.ID.String(),
		Operator:        r.Operator,
		World:           r.Realm.Name,
		Worlds:          append([]string(nil), w.realmNames...),
		Params: protocol.WorldParams{
			TickMillis:        w.cfg.TickMillis,
			UpdatePeriodTicks: w.cfg.UpdatePeriodTicks,
			ChunkSize:         16,
			Height:            gen.Height,
			FloorY:            gen.FloorY,
			Boundary:          gen.BoundaryR,
			Seed:              gen.Seed,
			RenderMode:        string(w.engine.Mode()),
			ViewRadius:        w.cfg.ViewRadius,
		},
	}
}

// spawnFor picks a per-rider spot near the realm origin.
func (w *World) spawnFor(rl *realm, id uuid.UUID) r3.Vec {
	return rl.spawnPoint(int(id[0]%16)-8, int(id[1]%16)-8)
}

func (w *World) handleLeave(id uuid.UUID, now time.Time) {
	r, ok := w.riders[id]
	if !ok {
		return
	}
	w.engine.OnOwnerQuit(id, now)
	for _, vid := range sortedKeys(w.vehicles) {
		if w.vehicles[vid].Owner == id {
			w.RemoveVehicle(vid)
		}
	}
	delete(w.riders, id)
	delete(w.clients, id)
	w.log.Info().Str("rider", r.Name).Msg("rider left")
}

// processDeaths respawns riders whose health ran out this tick.
func (w *World) processDeaths(now time.Time) {
	if len(w.deaths) == 0 {
		return
	}
	deaths := w.deaths
	w.deaths = nil
	for _, id := range deaths {
		r, ok := w.riders[id]
		if !ok {
			continue
		}
		w.engine.OnOwnerDeath(id, now)
		if r.Mounted() {
			w.dismount(r)
		}
		r.HP = w.cfg.MaxHP
		r.Throttle = 0
		r.Pos = w.spawnFor(r.Realm, id)
		w.Notify(id, "You were derezzed.")
	}
}

func (w *World) moveRiders() {
	for _, id := range sortedKeys(w.riders) {
		r := w.riders[id]
		if r.Mounted() {
			if v, ok := w.vehicles[r.Vehicle]; ok {
				r.Pos, r.Yaw, r.Realm = v.Pos, v.Yaw, v.Realm
			}
			continue
		}
		vel := r3.Scale(clampThrottle(r.Throttle)*w.cfg.WalkSpeed, heading(r.Yaw))
		r.Pos, _ = advance(r.Realm, r.Pos, vel)
		r.Pos = fall(r.Realm, r.Pos)
	}
}

func (w *World) travel(r *Rider, to *realm, now time.Time) {
	if r.Realm == to {
		return
	}
	pos := w.spawnFor(to, r.ID)
	r.Realm, r.Pos = to, pos
	if v, ok := w.vehicles[r.Vehicle]; ok {
		v.Realm, v.Pos = to, pos
	}
	if c, ok := w.clients[r.ID]; ok {
		c.resetCells()
		w.syncCells(r, c)
	}
	w.engine.OnWorldChange(r.ID, to.Name, now)
	w.log.Info().Str("rider", r.Name).Str("realm", to.Name).Msg("rider travelled")
}

// heading is the unit vector for a yaw in degrees: 0 faces +Z, 90 faces -X.
func heading(yaw float64) r3.Vec {
	rad := yaw * math.Pi / 180
	return r3.Vec{X: -math.Sin(rad), Z: math.Cos(rad)}
}

func clampThrottle(t float64) float64 {
	return math.Max(-1, math.Min(1, t))
}

// advance moves a two-cell-tall body by vel unless the destination is blocked.
func advance(rl *realm, pos, vel r3.Vec) (r3.Vec, bool) {
	if vel == (r3.Vec{}) {
		return pos, false
	}
	next := r3.Add(pos, vel)
	p := voxel.Floor(next)
	if rl.blocks(p) || rl.blocks(p.Up(1)) {
		return pos, true
	}
	return next, false
}

// fall drops a body one cell per tick until it stands on something.
func fall(rl *realm, pos r3.Vec) r3.Vec {
	below := voxel.Floor(pos).Up(-1)
	if below.Y < 0 || rl.blocks(below) {
		return pos
	}
	pos.Y = math.Floor(pos.Y) - 1
	return pos
}

func sortedKeys[V any](m map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

func (w *World) sendJSON(id uuid.UUID, v any) {
	c, ok := w.clients[id]
	if !ok {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		w.log.Error().Err(err).Msg("marshal message")
		return
	}
	trySend(c.Out, b)
}
