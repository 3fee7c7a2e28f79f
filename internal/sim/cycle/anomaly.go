package cycle

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/tuning"
)

// Anomaly describes a displacement too large to be real movement.
type Anomaly struct {
	Distance float64
	Vertical float64
	Reason   string
}

// DetectAnomaly compares the move since the last anchor against the configured
// thresholds. It reports nothing when detection is disabled.
func DetectAnomaly(pa tuning.PositionAnomaly, from, to r3.Vec) (Anomaly, bool) {
	if !pa.Enabled {
		return Anomaly{}, false
	}
	delta := r3.Sub(to, from)
	a := Anomaly{Distance: r3.Norm(delta), Vertical: math.Abs(delta.Y)}
	switch {
	case a.Distance > pa.MaxStepDistance:
		a.Reason = "distance"
	case a.Vertical > pa.MaxStepVertical:
		a.Reason = "vertical"
	default:
		return Anomaly{}, false
	}
	return a, true
}

// handleAnomaly applies the configured response and re-anchors the session at pos.
func (e *Engine) handleAnomaly(s *Session, world uuid.UUID, pos r3.Vec, a Anomaly, now time.Time) {
	pa := e.tun.PositionAnomaly
	if pa.ClearTrail {
		e.store.ClearOwner(s.Owner)
	}
	if pa.PauseEmission && !pa.DisableCooldown {
		s.EmitCooldownUntil = now.Add(e.tun.AnomalyCooldown())
	} else {
		s.EmitCooldownUntil = time.Time{}
	}
	s.reanchor(pos, now)

	e.debugNotify(s.Owner, fmt.Sprintf("anomaly detected (Δ=%.2f blocks, ΔY=%.2f). Trail cleared.", a.Distance, a.Vertical))
	if !s.EmitCooldownUntil.IsZero() {
		e.debugNotify(s.Owner, fmt.Sprintf("emission paused for %.1fs.", pa.CooldownSeconds))
	}
	e.env.Effects.Play(world, pos, EffectAnomaly, s.Color)
	e.metrics.anomaly(a.Reason)
	e.record(Event{Kind: EventAnomaly, At: now, Owner: s.Owner, World: world, Pos: vecArray(pos), Color: s.Color.String(), Detail: a.Reason})
	e.log.Debug().Str("owner", s.Owner.String()).Float64("dist", a.Distance).Float64("dy", a.Vertical).Msg("position anomaly")
}

func vecArray(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
