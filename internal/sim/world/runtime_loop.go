package world

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lightcycle.ai/internal/sim/terrain"
)

// chunkKeepRadius is how far around riders and vehicles chunks stay loaded.
const chunkKeepRadius = 32

// idleCheckEvery is how often, in game ticks, idle chunks are unloaded.
const idleCheckEvery = 20

func (w *World) Run(ctx context.Context) error {
	interval := time.Duration(w.cfg.TickMillis) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.doneOnce.Do(func() { close(w.done) })
	defer w.Shutdown()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []uuid.UUID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

// Shutdown ends every lightcycle session and restores all trail cells.
func (w *World) Shutdown() {
	w.engine.Shutdown(w.clock())
}

// StepOnce advances the world by a single game tick using the same ordering as Run.
func (w *World) StepOnce(joins []JoinRequest, leaves []uuid.UUID, actions []ActionEnvelope) {
	w.step(joins, leaves, actions)
}

func (w *World) step(joins []JoinRequest, leaves []uuid.UUID, actions []ActionEnvelope) {
	began := time.Now()
	now := w.clock()
	tick := w.tick.Add(1)

	for _, id := range leaves {
		w.handleLeave(id, now)
	}
	for _, req := range joins {
		w.handleJoin(req)
	}
	w.applyReloads()
	for _, env := range actions {
		w.handleAct(env, now)
	}

	w.moveVehicles()
	w.moveRiders()

	update := tick%uint64(w.cfg.UpdatePeriodTicks) == 0
	if update {
		w.engine.Tick(now)
	}
	w.processDeaths(now)
	w.keepChunks(tick)
	if update {
		w.flushObs(tick)
	}
	w.publishStats(time.Since(began))
}

// Stats is a point-in-time view of the world, safe to read from any goroutine.
type Stats struct {
	Tick         uint64  `json:"tick"`
	Riders       int     `json:"riders"`
	Vehicles     int     `json:"vehicles"`
	Sessions     int     `json:"sessions"`
	LiveSegments int     `json:"live_segments"`
	QueueInbox   int     `json:"queue_inbox"`
	StepMS       float64 `json:"step_ms"`
}

func (w *World) Stats() Stats {
	if p := w.stats.Load(); p != nil {
		return *p
	}
	return Stats{}
}

func (w *World) publishStats(took time.Duration) {
	w.stats.Store(&Stats{
		Tick:         w.tick.Load(),
		Riders:       len(w.riders),
		Vehicles:     len(w.vehicles),
		Sessions:     w.engine.ActiveSessions(),
		LiveSegments: w.engine.LiveSegments(),
		QueueInbox:   len(w.inbox),
		StepMS:       float64(took.Microseconds()) / 1000,
	})
}

// keepChunks marks chunks near bodies as in use and, periodically, unloads idle
// ones after the trail engine has restored their segments.
func (w *World) keepChunks(tick uint64) {
	for _, id := range sortedKeys(w.riders) {
		r := w.riders[id]
		r.Realm.touchAround(r.Pos, chunkKeepRadius, tick)
	}
	for _, id := range sortedKeys(w.vehicles) {
		v := w.vehicles[id]
		v.Realm.touchAround(v.Pos, chunkKeepRadius, tick)
	}
	if tick%idleCheckEvery != 0 {
		return
	}
	for _, name := range w.realmNames {
		r := w.realmByName[normalizeName(name)]
		for _, k := range r.chunks.IdleChunks(tick, uint64(w.cfg.PartitionIdleTicks)) {
			w.unloadChunk(r, k)
		}
	}
}

func (w *World) unloadChunk(r *realm, k terrain.ChunkKey) {
	n := w.engine.OnPartitionUnload(r.partition(k))
	r.chunks.Unload(k)
	if n > 0 {
		w.log.Debug().Str("realm", r.Name).Int("cx", k.CX).Int("cz", k.CZ).Int("segments", n).Msg("partition unloaded")
	}
}
