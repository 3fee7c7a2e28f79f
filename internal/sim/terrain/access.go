package terrain

import (
	"sort"

	"lightcycle.ai/internal/sim/mathx"
	"lightcycle.ai/internal/sim/voxel"
)

func (s *ChunkStore) InBounds(x, y, z int) bool {
	if y < 0 || y >= s.Gen.Height {
		return false
	}
	if s.Gen.BoundaryR > 0 {
		if x < -s.Gen.BoundaryR || x > s.Gen.BoundaryR || z < -s.Gen.BoundaryR || z > s.Gen.BoundaryR {
			return false
		}
	}
	return true
}

func KeyFor(x, z int) ChunkKey {
	return ChunkKey{CX: mathx.FloorDiv(x, ChunkSize), CZ: mathx.FloorDiv(z, ChunkSize)}
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) GetCell(p voxel.Pos) (voxel.Cell, error) {
	if !s.InBounds(p.X, p.Y, p.Z) {
		return voxel.Cell{}, ErrOutOfBounds
	}
	ch := s.GetOrGenChunk(mathx.FloorDiv(p.X, ChunkSize), mathx.FloorDiv(p.Z, ChunkSize))
	return ch.Get(mathx.Mod(p.X, ChunkSize), p.Y, mathx.Mod(p.Z, ChunkSize)), nil
}

func (s *ChunkStore) SetCell(p voxel.Pos, cell voxel.Cell) error {
	if !s.InBounds(p.X, p.Y, p.Z) {
		return ErrOutOfBounds
	}
	ch := s.GetOrGenChunk(mathx.FloorDiv(p.X, ChunkSize), mathx.FloorDiv(p.Z, ChunkSize))
	ch.Set(mathx.Mod(p.X, ChunkSize), p.Y, mathx.Mod(p.Z, ChunkSize), cell)
	return nil
}

func (s *ChunkStore) GetOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: s.Gen.Height,
		Cells:  make([]voxel.Cell, ChunkSize*ChunkSize*s.Gen.Height),
	}
	s.GenerateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	s.Chunks[k] = ch
	return ch
}

// Touch marks a chunk as in use at tick; it loads the chunk if needed.
func (s *ChunkStore) Touch(k ChunkKey, tick uint64) {
	s.GetOrGenChunk(k.CX, k.CZ)
	s.touched[k] = tick
}

// IdleChunks lists loaded chunks not touched within idleTicks of nowTick, in key order.
func (s *ChunkStore) IdleChunks(nowTick, idleTicks uint64) []ChunkKey {
	var out []ChunkKey
	for _, k := range s.LoadedChunkKeys() {
		last := s.touched[k]
		if nowTick >= last && nowTick-last >= idleTicks {
			out = append(out, k)
		}
	}
	return out
}

func (s *ChunkStore) Unload(k ChunkKey) {
	delete(s.Chunks, k)
	delete(s.touched, k)
}

// Change is a cell that differs from freshly generated terrain.
type Change struct {
	Pos  voxel.Pos
	Cell voxel.Cell
}

// Changes lists the cells of loaded chunk k that differ from what generation
// produces, in y, z, x order. Unloaded chunks have no changes.
func (s *ChunkStore) Changes(k ChunkKey) []Change {
	ch, ok := s.Chunks[k]
	if !ok {
		return nil
	}
	fresh := &Chunk{CX: k.CX, CZ: k.CZ, Height: ch.Height, Cells: make([]voxel.Cell, len(ch.Cells))}
	s.GenerateChunk(fresh)
	var out []Change
	for y := 0; y < ch.Height; y++ {
		for z := 0; z < ChunkSize; z++ {
			for x := 0; x < ChunkSize; x++ {
				i := ch.index(x, y, z)
				if ch.Cells[i] != fresh.Cells[i] {
					out = append(out, Change{
						Pos:  voxel.Pos{X: k.CX*ChunkSize + x, Y: y, Z: k.CZ*ChunkSize + z},
						Cell: ch.Cells[i],
					})
				}
			}
		}
	}
	return out
}
