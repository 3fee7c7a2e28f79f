package world

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/mathx"
	"lightcycle.ai/internal/sim/terrain"
	"lightcycle.ai/internal/sim/trail"
	"lightcycle.ai/internal/sim/voxel"
)

type realm struct {
	ID     uuid.UUID
	Name   string
	chunks *terrain.ChunkStore
}

func newRealm(c RealmConfig) *realm {
	return &realm{
		ID:   RealmID(c.Name),
		Name: c.Name,
		chunks: terrain.NewChunkStore(terrain.WorldGen{
			Seed:            c.Seed,
			Height:          c.Height,
			FloorY:          c.FloorY,
			BoundaryR:       c.BoundaryR,
			PillarPermille:  c.PillarPermille,
			FoliagePermille: c.FoliagePermille,
		}),
	}
}

func (r *realm) cell(p voxel.Pos) (voxel.Cell, bool) {
	c, err := r.chunks.GetCell(p)
	return c, err == nil
}

// blocks reports whether a body may not occupy p. Trail panes are passable; the
// trail engine decides what touching them means.
func (r *realm) blocks(p voxel.Pos) bool {
	c, ok := r.cell(p)
	if !ok {
		return true
	}
	return c.Material.Solid() && !c.Material.IsPane()
}

// spawnPoint finds a free standing spot near (x, z), scanning outward on a ring.
func (r *realm) spawnPoint(x, z int) r3.Vec {
	floor := r.chunks.Gen.FloorY
	for radius := 0; radius < 16; radius++ {
		for dx := -radius; dx <= radius; dx++ {
			for dz := -radius; dz <= radius; dz++ {
				if max(mathx.AbsInt(dx), mathx.AbsInt(dz)) != radius {
					continue
				}
				p := voxel.Pos{X: x + dx, Y: floor + 1, Z: z + dz}
				if !r.blocks(p) && !r.blocks(p.Up(1)) && r.blocks(p.Up(-1)) {
					return r3.Vec{X: float64(p.X) + 0.5, Y: float64(p.Y), Z: float64(p.Z) + 0.5}
				}
			}
		}
	}
	return r3.Vec{X: float64(x) + 0.5, Y: float64(floor + 1), Z: float64(z) + 0.5}
}

// touchAround keeps the chunks within radius cells of pos loaded.
func (r *realm) touchAround(pos r3.Vec, radius int, tick uint64) {
	c := voxel.Floor(pos)
	lo := terrain.KeyFor(c.X-radius, c.Z-radius)
	hi := terrain.KeyFor(c.X+radius, c.Z+radius)
	for cx := lo.CX; cx <= hi.CX; cx++ {
		for cz := lo.CZ; cz <= hi.CZ; cz++ {
			r.chunks.Touch(terrain.ChunkKey{CX: cx, CZ: cz}, tick)
		}
	}
}

func (r *realm) partition(k terrain.ChunkKey) trail.PartitionKey {
	return trail.PartitionKey{World: r.ID, CX: k.CX, CZ: k.CZ}
}
