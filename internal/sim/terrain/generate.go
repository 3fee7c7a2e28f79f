package terrain

import (
	"lightcycle.ai/internal/sim/mathx"
	"lightcycle.ai/internal/sim/voxel"
)

// GenerateChunk lays out a flat grid: stone below the floor, a grid floor, scattered
// pillars and foliage above it, and a boundary wall when the world is bounded.
func (s *ChunkStore) GenerateChunk(ch *Chunk) {
	g := s.Gen
	floor := mathx.ClampInt(g.FloorY, 0, g.Height-1)
	pillarH := g.PillarHeight
	if pillarH <= 0 {
		pillarH = 3
	}
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			wx := ch.CX*ChunkSize + x
			wz := ch.CZ*ChunkSize + z

			for y := 0; y < floor; y++ {
				ch.Cells[ch.index(x, y, z)] = voxel.Cell{Material: voxel.Stone}
			}
			ch.Cells[ch.index(x, floor, z)] = voxel.Cell{Material: voxel.GridFloor}

			above := voxel.Air
			top := floor
			switch {
			case g.BoundaryR > 0 && (mathx.AbsInt(wx) == g.BoundaryR || mathx.AbsInt(wz) == g.BoundaryR):
				above = voxel.Stone
				top = g.Height - 1
			case roll(g.Seed+11, wx, wz) < uint64(mathx.ClampInt(g.PillarPermille, 0, 1000)):
				above = voxel.Stone
				top = floor + pillarH
			case roll(g.Seed+23, wx, wz) < uint64(mathx.ClampInt(g.FoliagePermille, 0, 1000)):
				above = voxel.ShortGrass
				top = floor + 1
			}
			for y := floor + 1; y < g.Height; y++ {
				m := voxel.Air
				if y <= top {
					m = above
				}
				ch.Cells[ch.index(x, y, z)] = voxel.Cell{Material: m}
			}
		}
	}
}

func roll(seed int64, x, z int) uint64 {
	return mathx.Hash2(seed, x, z) % 1000
}
