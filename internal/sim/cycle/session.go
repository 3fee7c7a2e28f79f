package cycle

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/voxel"
)

type State int

const (
	StateMounted State = iota
	StateDismountGrace
)

func (s State) String() string {
	if s == StateDismountGrace {
		return "DISMOUNT_GRACE"
	}
	return "MOUNTED"
}

// Session is one owner's active lightcycle. Terminated sessions are simply
// removed from the engine.
type Session struct {
	Owner   uuid.UUID
	Vehicle uuid.UUID
	Color   voxel.Color
	World   uuid.UUID

	Emit bool

	// Anchor is the last point the trail was sampled up to.
	Anchor   r3.Vec
	AnchorAt time.Time

	EmitCooldownUntil time.Time
	DismountTicks     int

	lastHumTick uint64
}

func (s *Session) State() State {
	if s.DismountTicks > 0 {
		return StateDismountGrace
	}
	return StateMounted
}

func (s *Session) reanchor(pos r3.Vec, now time.Time) {
	s.Anchor = pos
	s.AnchorAt = now
}

func (s *Session) emitting(now time.Time) bool {
	return s.Emit && !now.Before(s.EmitCooldownUntil)
}
