package cycle

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/trail"
	"lightcycle.ai/internal/sim/tuning"
	"lightcycle.ai/internal/sim/voxel"
)

const ribbonMinDistance = 0.15

// Engine owns the trail store and every lightcycle session. All methods must be
// called from the world goroutine.
type Engine struct {
	log     zerolog.Logger
	env     Env
	tun     tuning.Tuning
	store   *trail.Store
	render  Renderer
	set     renderSettings
	metrics *engineMetrics

	sessions           map[uuid.UUID]*Session
	spawnCooldownUntil map[uuid.UUID]time.Time
	debounceUntil      map[uuid.UUID]time.Time
	resyncDue          map[uuid.UUID]pendingResync
	// orphans own live segments but no session; they still expire.
	orphans map[uuid.UUID]struct{}

	tick uint64
}

func New(env Env, tun tuning.Tuning, log zerolog.Logger) (*Engine, error) {
	if env.Cells == nil || env.Mobiles == nil || env.Viewers == nil || env.Effects == nil {
		return nil, fmt.Errorf("cycle: incomplete environment")
	}
	m, err := newEngineMetrics()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		log:                log,
		env:                env,
		tun:                tun,
		set:                settingsFrom(tun),
		metrics:            m,
		sessions:           map[uuid.UUID]*Session{},
		spawnCooldownUntil: map[uuid.UUID]time.Time{},
		debounceUntil:      map[uuid.UUID]time.Time{},
		resyncDue:          map[uuid.UUID]pendingResync{},
		orphans:            map[uuid.UUID]struct{}{},
	}
	e.store = trail.NewStore(tun.Lifetime(), e.release)
	e.render = newRenderer(tun.Trail.RenderMode, env, e.store, &e.set, log)
	log.Info().Str("mode", string(e.render.Mode())).Dur("lifetime", tun.Lifetime()).Msg("trail engine ready")
	return e, nil
}

func (e *Engine) release(seg trail.Segment) {
	e.render.Retract(seg)
	e.metrics.segmentRemoved()
}

func (e *Engine) Mode() tuning.RenderMode { return e.render.Mode() }
func (e *Engine) Tuning() tuning.Tuning   { return e.tun }
func (e *Engine) LiveSegments() int       { return e.store.Len() }
func (e *Engine) ActiveSessions() int     { return len(e.sessions) }

// Session returns a copy of owner's session.
func (e *Engine) Session(owner uuid.UUID) (Session, bool) {
	s, ok := e.sessions[owner]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Segment looks up the live segment covering cell, if any.
func (e *Engine) Segment(world uuid.UUID, cell voxel.Pos) (trail.Segment, bool) {
	entry, ok := e.store.Lookup(trail.CellKey{World: world, Pos: cell})
	if !ok {
		return trail.Segment{}, false
	}
	return e.store.Get(entry.Key)
}

// Tick advances every session by one engine update. A failing session is
// dismissed; the others still run.
func (e *Engine) Tick(now time.Time) {
	e.tick += uint64(e.tun.Trail.UpdatePeriodTicks)
	e.runDueResyncs()

	ids := make([]uuid.UUID, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		s, ok := e.sessions[id]
		if !ok {
			continue
		}
		e.safeStep(s, now)
	}

	e.evictOrphans(now)
	e.metrics.setLive(e.store.Len())
}

func (e *Engine) safeStep(s *Session, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("owner", s.Owner.String()).Interface("panic", r).Msg("session tick failed, dismissing")
			e.abandon(s.Owner, now)
		}
	}()
	e.step(s, now)
}

// abandon dismisses owner after a fault, swallowing any second failure.
func (e *Engine) abandon(owner uuid.UUID, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			delete(e.sessions, owner)
			e.log.Error().Str("owner", owner.String()).Interface("panic", r).Msg("dismiss after fault failed")
		}
	}()
	e.Dismiss(owner, true, false, now)
}

func (e *Engine) step(s *Session, now time.Time) {
	owner, ok := e.env.Mobiles.Owner(s.Owner)
	veh, vok := e.env.Mobiles.Vehicle(s.Vehicle)
	if !ok || !owner.Online || !vok || !veh.Alive {
		e.Dismiss(s.Owner, true, false, now)
		return
	}
	if !e.tun.WorldAllowed(veh.WorldName) {
		e.Dismiss(s.Owner, true, false, now)
		return
	}

	if !veh.Carries(s.Owner) {
		s.DismountTicks++
		if s.DismountTicks >= e.tun.Cycle.DismountGraceTicks {
			e.Dismiss(s.Owner, true, true, now)
			return
		}
		e.evict(s.Owner, now)
		s.reanchor(veh.Pos, now)
		return
	}
	s.DismountTicks = 0

	if e.tick-s.lastHumTick >= uint64(e.tun.Cycle.HumIntervalTicks) {
		e.env.Effects.Play(veh.World, veh.Pos, EffectHum, s.Color)
		s.lastHumTick = e.tick
	}

	e.evict(s.Owner, now)

	if entry, hit := e.trailHit(s, veh, now); hit {
		cause := "trail"
		if entry.Owner == s.Owner {
			cause = "own_trail"
		}
		e.crash(s, veh, cause, now)
		return
	}
	if _, hit := e.wallHit(veh); hit {
		e.crash(s, veh, "wall", now)
		return
	}

	if veh.World != s.World {
		s.World = veh.World
		e.handleAnomaly(s, veh.World, veh.Pos, Anomaly{Reason: "world"}, now)
		return
	}
	if a, bad := DetectAnomaly(e.tun.PositionAnomaly, s.Anchor, veh.Pos); bad {
		e.handleAnomaly(s, veh.World, veh.Pos, a, now)
		return
	}

	if !s.emitting(now) {
		s.reanchor(veh.Pos, now)
		return
	}

	lc := e.tun.LagCompensation
	var elapsed time.Duration
	if !s.AnchorAt.IsZero() {
		elapsed = now.Sub(s.AnchorAt)
	}
	step := StepDistance(lc, e.tun.Trail.SampleBaseStep, r3.Norm(veh.Velocity), elapsed)
	pts, capped := SamplePoints(s.Anchor, veh.Pos, step, lc.MaxSamplesPerUpdate)
	if capped && lc.OnCap == tuning.CapAnomaly {
		d := r3.Sub(veh.Pos, s.Anchor)
		e.handleAnomaly(s, veh.World, veh.Pos, Anomaly{Distance: r3.Norm(d), Vertical: math.Abs(d.Y), Reason: "sample_cap"}, now)
		return
	}

	e.emit(s, veh.World, pts, now)
	if r3.Norm(r3.Sub(veh.Pos, s.Anchor)) >= ribbonMinDistance {
		e.env.Effects.Play(veh.World, veh.Pos, EffectRibbon, s.Color)
	}
	s.reanchor(veh.Pos, now)
}

func (e *Engine) evict(owner uuid.UUID, now time.Time) {
	e.store.EvictExpired(owner, now, e.tun.Trail.EvictBatch)
}

func (e *Engine) evictOrphans(now time.Time) {
	if len(e.orphans) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(e.orphans))
	for id := range e.orphans {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		e.evict(id, now)
		if e.store.OwnerLen(id) == 0 {
			delete(e.orphans, id)
		}
	}
}

// emit places a segment at every sampled point whose two cells are free and
// replaceable. Unreadable cells skip the point.
func (e *Engine) emit(s *Session, world uuid.UUID, pts []r3.Vec, now time.Time) {
	for _, p := range pts {
		base := voxel.Floor(p)
		key := trail.CellKey{World: world, Pos: base}
		if e.occupied(key) || e.occupied(key.Up(1)) {
			continue
		}
		baseCell, err := e.env.Cells.Cell(world, base)
		if err != nil {
			continue
		}
		aboveCell, err := e.env.Cells.Cell(world, base.Up(1))
		if err != nil {
			continue
		}
		if !e.env.Cells.Replaceable(baseCell) || !e.env.Cells.Replaceable(aboveCell) {
			continue
		}

		seg := trail.Segment{
			Key:       key,
			PlacedAt:  now,
			Owner:     s.Owner,
			Color:     s.Color,
			OrigBase:  baseCell,
			OrigAbove: aboveCell,
		}
		if e.tun.Lighting.Enabled && !e.occupied(key.Up(2)) {
			if glow, err := e.env.Cells.Cell(world, base.Up(2)); err == nil && glow.Material.IsAir() {
				seg.Glow = true
				seg.OrigGlow = glow
			}
		}

		if err := e.store.Put(seg); err != nil {
			continue
		}
		if err := e.render.Place(seg); err != nil {
			e.log.Warn().Err(err).Str("owner", s.Owner.String()).Int("x", base.X).Int("y", base.Y).Int("z", base.Z).Msg("trail placement failed, rolling back")
			e.store.Remove(seg.Key)
			continue
		}
		e.metrics.segmentPlaced(string(e.render.Mode()))
	}
}

func (e *Engine) occupied(k trail.CellKey) bool {
	_, ok := e.store.Lookup(k)
	return ok
}

func (e *Engine) crash(s *Session, veh VehicleState, cause string, now time.Time) {
	e.env.Effects.Play(veh.World, veh.Pos, EffectCrash, s.Color)
	if e.tun.Crash.InstantKill {
		e.env.Effects.Kill(s.Owner)
	} else {
		e.env.Effects.Damage(s.Owner, e.tun.Crash.DriverDamage, s.Vehicle)
	}
	e.metrics.crash(cause)
	e.record(Event{Kind: EventCrash, At: now, Owner: s.Owner, World: veh.World, Pos: vecArray(veh.Pos), Color: s.Color.String(), Detail: cause})
	e.log.Info().Str("owner", s.Owner.String()).Str("cause", cause).Msg("lightcycle crashed")
	e.Dismiss(s.Owner, true, false, now)
}

// Dismiss ends owner's session: the vehicle is removed, the trail optionally
// cleared and the stop effect optionally played. It reports whether a session
// existed; trail clearing happens either way.
func (e *Engine) Dismiss(owner uuid.UUID, clearTrail, playEffect bool, now time.Time) bool {
	s, ok := e.sessions[owner]
	delete(e.sessions, owner)
	if ok {
		if veh, vok := e.env.Mobiles.Vehicle(s.Vehicle); vok {
			e.env.Mobiles.SetGlow(s.Vehicle, s.Color, false)
			if playEffect {
				e.env.Effects.Play(veh.World, veh.Pos, EffectDerez, s.Color)
			}
		}
		e.env.Mobiles.RemoveVehicle(s.Vehicle)
		e.record(Event{Kind: EventDismiss, At: now, Owner: owner, World: s.World, Pos: vecArray(s.Anchor), Color: s.Color.String()})
	}
	if clearTrail {
		e.store.ClearOwner(owner)
		delete(e.orphans, owner)
	} else if e.store.OwnerLen(owner) > 0 {
		e.orphans[owner] = struct{}{}
	}
	return ok
}

func (e *Engine) record(ev Event) {
	if e.env.Journal != nil {
		e.env.Journal.Record(ev)
	}
}

func (e *Engine) debugNotify(owner uuid.UUID, text string) {
	if !e.tun.Debug.Enabled {
		return
	}
	if e.tun.Debug.ToOpsOnly {
		o, ok := e.env.Mobiles.Owner(owner)
		if !ok || !o.Operator {
			return
		}
	}
	e.env.Effects.Notify(owner, "LightCycle debug: "+text)
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
