package cycle

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/voxel"
)

// Cells is read/write access to the authoritative voxel state.
type Cells interface {
	Cell(world uuid.UUID, p voxel.Pos) (voxel.Cell, error)
	SetCell(world uuid.UUID, p voxel.Pos, c voxel.Cell) error
	// Replaceable reports whether a trail may be placed over c.
	Replaceable(c voxel.Cell) bool
	Solid(c voxel.Cell) bool
}

type OwnerState struct {
	ID        uuid.UUID
	Online    bool
	World     uuid.UUID
	WorldName string
	Pos       r3.Vec
	Operator  bool
}

type VehicleState struct {
	ID        uuid.UUID
	World     uuid.UUID
	WorldName string
	Pos       r3.Vec
	// Velocity is in cells per game tick.
	Velocity   r3.Vec
	Alive      bool
	Passengers []uuid.UUID
}

func (v VehicleState) Carries(owner uuid.UUID) bool {
	for _, p := range v.Passengers {
		if p == owner {
			return true
		}
	}
	return false
}

// Mobiles exposes riders and their vehicles.
type Mobiles interface {
	Owner(id uuid.UUID) (OwnerState, bool)
	Vehicle(id uuid.UUID) (VehicleState, bool)
	// SpawnVehicle creates a vehicle at the owner's position with the owner mounted.
	SpawnVehicle(owner uuid.UUID, color voxel.Color) (uuid.UUID, error)
	// RemoveVehicle unmounts all passengers and despawns the vehicle.
	RemoveVehicle(id uuid.UUID)
	SetGlow(vehicle uuid.UUID, color voxel.Color, on bool)
}

// Viewers are connected observers that can receive client-only cell overrides.
type Viewers interface {
	ViewersNear(world uuid.UUID, center r3.Vec, radius float64) []uuid.UUID
	ViewerPos(viewer uuid.UUID) (world uuid.UUID, pos r3.Vec, ok bool)
	SendOverride(viewer, world uuid.UUID, p voxel.Pos, c voxel.Cell)
	SendReal(viewer, world uuid.UUID, p voxel.Pos, c voxel.Cell)
}

type Effect string

const (
	EffectRez     Effect = "rez"
	EffectDerez   Effect = "derez"
	EffectHum     Effect = "hum"
	EffectCrash   Effect = "crash"
	EffectRecall  Effect = "recall"
	EffectAnomaly Effect = "anomaly"
	EffectRibbon  Effect = "ribbon"
)

type Effects interface {
	Play(world uuid.UUID, pos r3.Vec, effect Effect, color voxel.Color)
	Damage(owner uuid.UUID, amount float64, source uuid.UUID)
	Kill(owner uuid.UUID)
	Notify(owner uuid.UUID, text string)
}

// Prefs stores each owner's preferred color.
type Prefs interface {
	Color(owner uuid.UUID) (voxel.Color, bool)
	SetColor(owner uuid.UUID, c voxel.Color)
}

type EventKind string

const (
	EventSpawn   EventKind = "SPAWN"
	EventDismiss EventKind = "DISMISS"
	EventCrash   EventKind = "CRASH"
	EventAnomaly EventKind = "ANOMALY"
)

// Event is a journal record of a session lifecycle change.
type Event struct {
	Kind   EventKind  `json:"kind"`
	At     time.Time  `json:"at"`
	Owner  uuid.UUID  `json:"owner"`
	World  uuid.UUID  `json:"world"`
	Pos    [3]float64 `json:"pos"`
	Color  string     `json:"color,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

type Journal interface {
	Record(ev Event)
}

// Env bundles the collaborators the engine consumes. Prefs and Journal may be nil.
type Env struct {
	Cells   Cells
	Mobiles Mobiles
	Viewers Viewers
	Effects Effects
	Prefs   Prefs
	Journal Journal
}
