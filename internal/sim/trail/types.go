package trail

import (
	"time"

	"github.com/google/uuid"

	"lightcycle.ai/internal/sim/mathx"
	"lightcycle.ai/internal/sim/voxel"
)

// PartitionSize is the side length, in cells, of a square column partition.
const PartitionSize = 16

// CellKey identifies one cell in one world. Segments are keyed by their base cell.
type CellKey struct {
	World uuid.UUID `json:"world"`
	Pos   voxel.Pos `json:"pos"`
}

func (k CellKey) Up(n int) CellKey { return CellKey{World: k.World, Pos: k.Pos.Up(n)} }

func (k CellKey) Partition() PartitionKey {
	return PartitionKey{
		World: k.World,
		CX:    mathx.FloorDiv(k.Pos.X, PartitionSize),
		CZ:    mathx.FloorDiv(k.Pos.Z, PartitionSize),
	}
}

type PartitionKey struct {
	World uuid.UUID
	CX    int
	CZ    int
}

// Segment is one placed piece of trail wall. OrigBase/OrigAbove/OrigGlow hold the
// cell data that was there before placement and are written back on removal.
type Segment struct {
	Key      CellKey
	PlacedAt time.Time
	Owner    uuid.UUID
	Color    voxel.Color

	OrigBase  voxel.Cell
	OrigAbove voxel.Cell

	Glow     bool
	OrigGlow voxel.Cell
}

// Cells lists every cell the segment occupies, base first.
func (s Segment) Cells() []CellKey {
	if s.Glow {
		return []CellKey{s.Key, s.Key.Up(1), s.Key.Up(2)}
	}
	return []CellKey{s.Key, s.Key.Up(1)}
}

func (s Segment) Age(now time.Time) time.Duration { return now.Sub(s.PlacedAt) }

// IndexEntry is stored once per occupied cell and points back at the owning segment.
type IndexEntry struct {
	Key      CellKey
	PlacedAt time.Time
	Owner    uuid.UUID
}
