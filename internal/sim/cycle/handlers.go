package cycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lightcycle.ai/internal/sim/trail"
	"lightcycle.ai/internal/sim/tuning"
	"lightcycle.ai/internal/sim/voxel"
)

var ErrUnknownColor = errors.New("cycle: unknown color")

// Interact is the rider's spawn/recall action: it recalls an active cycle or
// spawns a new one in the rider's preferred color.
func (e *Engine) Interact(owner uuid.UUID, now time.Time) error {
	if until, ok := e.debounceUntil[owner]; ok && now.Before(until) {
		return ErrDebounced
	}
	e.debounceUntil[owner] = now.Add(e.tun.Debounce())

	o, ok := e.env.Mobiles.Owner(owner)
	if !ok || !o.Online {
		return ErrUnknownOwner
	}
	if !e.tun.WorldAllowed(o.WorldName) {
		e.env.Effects.Notify(owner, "Lightcycles are not allowed in this world.")
		return ErrWorldNotAllowed
	}
	if _, active := e.sessions[owner]; active {
		return e.Recall(owner, now)
	}

	err := e.Spawn(owner, e.PreferredColor(owner), now)
	var cd *CooldownError
	switch {
	case errors.As(err, &cd):
		e.env.Effects.Notify(owner, fmt.Sprintf("[Your lightcycle is on %.1f second cooldown.]", cd.Remaining.Seconds()))
	case err != nil:
		e.env.Effects.Notify(owner, "Failed to rez lightcycle.")
	default:
		e.env.Effects.Notify(owner, "[Lightcycle rezzed.]")
	}
	return err
}

// Spawn creates a fresh session for owner, replacing any existing one.
func (e *Engine) Spawn(owner uuid.UUID, color voxel.Color, now time.Time) error {
	o, ok := e.env.Mobiles.Owner(owner)
	if !ok || !o.Online {
		return ErrUnknownOwner
	}
	if !e.tun.WorldAllowed(o.WorldName) {
		return ErrWorldNotAllowed
	}
	if until, ok := e.spawnCooldownUntil[owner]; ok && now.Before(until) {
		return &CooldownError{Remaining: until.Sub(now)}
	}

	e.Dismiss(owner, true, false, now)

	vid, err := e.env.Mobiles.SpawnVehicle(owner, color)
	if err != nil {
		e.log.Error().Err(err).Str("owner", owner.String()).Msg("spawn vehicle failed")
		return fmt.Errorf("spawn vehicle: %w", err)
	}
	pos := o.Pos
	world := o.World
	if veh, ok := e.env.Mobiles.Vehicle(vid); ok {
		pos, world = veh.Pos, veh.World
	}
	if e.tun.Visual.GlowingOutline {
		e.env.Mobiles.SetGlow(vid, color, true)
	}
	e.env.Effects.Play(world, pos, EffectRez, color)

	e.sessions[owner] = &Session{
		Owner:       owner,
		Vehicle:     vid,
		Color:       color,
		World:       world,
		Emit:        true,
		Anchor:      pos,
		AnchorAt:    now,
		lastHumTick: e.tick,
	}
	delete(e.spawnCooldownUntil, owner)
	delete(e.orphans, owner)
	e.record(Event{Kind: EventSpawn, At: now, Owner: owner, World: world, Pos: vecArray(pos), Color: color.String()})
	return nil
}

// Recall dismisses owner's cycle with the stop effect and starts the spawn cooldown.
func (e *Engine) Recall(owner uuid.UUID, now time.Time) error {
	s, ok := e.sessions[owner]
	if !ok {
		return ErrNoSession
	}
	e.env.Effects.Notify(owner, "[Recalling lightcycle...]")
	if veh, ok := e.env.Mobiles.Vehicle(s.Vehicle); ok {
		e.env.Effects.Play(veh.World, veh.Pos, EffectRecall, s.Color)
	}
	e.Dismiss(owner, true, true, now)
	e.spawnCooldownUntil[owner] = now.Add(e.tun.SpawnCooldown())
	return nil
}

// Crash wrecks owner's cycle as if it had hit a wall.
func (e *Engine) Crash(owner uuid.UUID, now time.Time) error {
	s, ok := e.sessions[owner]
	if !ok {
		return ErrNoSession
	}
	veh, ok := e.env.Mobiles.Vehicle(s.Vehicle)
	if !ok {
		e.Dismiss(owner, true, false, now)
		return nil
	}
	e.crash(s, veh, "external", now)
	return nil
}

// ToggleTrail flips trail emission for owner's active cycle and returns the new state.
func (e *Engine) ToggleTrail(owner uuid.UUID) (bool, error) {
	s, ok := e.sessions[owner]
	if !ok {
		return false, ErrNoSession
	}
	s.Emit = !s.Emit
	state := "Disabled"
	if s.Emit {
		state = "Enabled"
	}
	e.env.Effects.Notify(owner, "Light Trail: "+state)
	return s.Emit, nil
}

// PreferredColor is owner's stored color, or white.
func (e *Engine) PreferredColor(owner uuid.UUID) voxel.Color {
	if e.env.Prefs != nil {
		if c, ok := e.env.Prefs.Color(owner); ok {
			return c
		}
	}
	return voxel.White
}

// SetColor stores owner's preferred color; it applies from the next spawn.
func (e *Engine) SetColor(owner uuid.UUID, name string) (voxel.Color, error) {
	c, ok := voxel.ParseColor(name)
	if !ok {
		return voxel.White, fmt.Errorf("%w: %q", ErrUnknownColor, name)
	}
	if e.env.Prefs != nil {
		e.env.Prefs.SetColor(owner, c)
	}
	e.env.Effects.Notify(owner, "Lightcycle color set to "+c.String()+".")
	return c, nil
}

// pendingResync is a resync due at engine tick at, skipping the from nearest
// segments already sent.
type pendingResync struct {
	at   uint64
	from int
}

// Resync resends the trails around viewer. It is a no-op outside illusion mode.
// Segments beyond the per-call cap follow on the next engine tick.
func (e *Engine) Resync(viewer uuid.UUID) int {
	return e.resyncFrom(viewer, 0)
}

func (e *Engine) resyncFrom(viewer uuid.UUID, from int) int {
	n, next, more := e.render.Resync(viewer, from)
	e.metrics.resyncChanges(n)
	if more {
		e.resyncDue[viewer] = pendingResync{at: e.tick + 1, from: next}
	}
	return n
}

// ScheduleResync queues a resync for viewer after delayTicks game ticks.
func (e *Engine) ScheduleResync(viewer uuid.UUID, delayTicks int) {
	if e.render.Mode() != tuning.RenderIllusion {
		return
	}
	if delayTicks < 0 {
		delayTicks = 0
	}
	e.resyncDue[viewer] = pendingResync{at: e.tick + uint64(delayTicks)}
}

func (e *Engine) runDueResyncs() {
	if len(e.resyncDue) == 0 {
		return
	}
	var due []uuid.UUID
	for v, p := range e.resyncDue {
		if p.at <= e.tick {
			due = append(due, v)
		}
	}
	sortIDs(due)
	for _, v := range due {
		p := e.resyncDue[v]
		delete(e.resyncDue, v)
		e.resyncFrom(v, p.from)
	}
}

func (e *Engine) OnOwnerJoin(owner uuid.UUID) {
	e.ScheduleResync(owner, e.tun.Trail.Illusion.ResyncDelayTicks)
}

func (e *Engine) OnOwnerQuit(owner uuid.UUID, now time.Time) {
	e.Dismiss(owner, true, false, now)
	delete(e.resyncDue, owner)
	delete(e.debounceUntil, owner)
}

func (e *Engine) OnOwnerDeath(owner uuid.UUID, now time.Time) {
	e.Dismiss(owner, true, false, now)
}

func (e *Engine) OnVehicleDeath(vehicle uuid.UUID, now time.Time) {
	for owner, s := range e.sessions {
		if s.Vehicle == vehicle {
			e.Dismiss(owner, true, false, now)
			return
		}
	}
}

// OnWorldChange handles owner arriving in worldName: disallowed worlds end the
// session, otherwise nearby trails are resent.
func (e *Engine) OnWorldChange(owner uuid.UUID, worldName string, now time.Time) {
	if !e.tun.WorldAllowed(worldName) {
		e.Dismiss(owner, true, false, now)
		return
	}
	e.ScheduleResync(owner, e.tun.Trail.Illusion.ResyncDelayTicks/2)
}

// OnPartitionUnload restores and forgets every segment in pk.
func (e *Engine) OnPartitionUnload(pk trail.PartitionKey) int {
	return e.store.OnPartitionUnload(pk)
}

// Reload applies new tuning on behalf of owner, who must be an operator.
func (e *Engine) Reload(owner uuid.UUID, tun tuning.Tuning) error {
	o, ok := e.env.Mobiles.Owner(owner)
	if !ok || !o.Operator {
		return ErrNotOperator
	}
	e.ApplyTuning(tun)
	e.env.Effects.Notify(owner, "Lightcycle config reloaded.")
	return nil
}

// ApplyTuning swaps in tun. The render mode and update period are fixed for the
// engine's lifetime.
func (e *Engine) ApplyTuning(tun tuning.Tuning) {
	if tun.Trail.RenderMode != e.render.Mode() {
		e.log.Warn().Str("configured", string(tun.Trail.RenderMode)).Str("active", string(e.render.Mode())).Msg("render mode change needs a restart")
		tun.Trail.RenderMode = e.render.Mode()
	}
	if period := e.tun.Trail.UpdatePeriodTicks; tun.Trail.UpdatePeriodTicks != period {
		e.log.Warn().Int("configured", tun.Trail.UpdatePeriodTicks).Int("active", period).Msg("update period change needs a restart")
		tun.Trail.UpdatePeriodTicks = period
	}
	e.tun = tun
	e.set = settingsFrom(tun)
	e.store.SetLifetime(tun.Lifetime())
}

// Shutdown dismisses every session and restores every segment.
func (e *Engine) Shutdown(now time.Time) {
	ids := make([]uuid.UUID, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		e.Dismiss(id, true, false, now)
	}
	n := e.store.RestoreAll()
	e.orphans = map[uuid.UUID]struct{}{}
	e.resyncDue = map[uuid.UUID]pendingResync{}
	e.metrics.setLive(0)
	if err := e.metrics.unregister(); err != nil {
		e.log.Warn().Err(err).Msg("unregistering trail metrics")
	}
	e.log.Info().Int("restored", n).Msg("trail engine stopped")
}
