package terrain

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"lightcycle.ai/internal/sim/voxel"
)

const ChunkSize = 16

var ErrOutOfBounds = errors.New("terrain: position out of bounds")

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk is a 16x16 column of cells, Height cells tall.
type Chunk struct {
	CX, CZ int
	Height int
	Cells  []voxel.Cell // len = 16*16*Height

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) voxel.Cell {
	return c.Cells[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, cell voxel.Cell) {
	i := c.index(x, y, z)
	if c.Cells[i] == cell {
		return
	}
	c.Cells[i] = cell
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [4]byte
		for _, v := range c.Cells {
			binary.LittleEndian.PutUint16(tmp[:2], uint16(v.Material))
			tmp[2] = byte(v.Faces)
			tmp[3] = v.Level
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

type WorldGen struct {
	Seed      int64
	Height    int
	FloorY    int
	BoundaryR int // cells; 0 = unbounded

	PillarPermille  int
	PillarHeight    int
	FoliagePermille int
}

// ChunkStore holds the loaded chunks of one world. Chunks are generated on first
// access and may be dropped with Unload; regeneration is deterministic from Gen.
type ChunkStore struct {
	Gen    WorldGen
	Chunks map[ChunkKey]*Chunk

	touched map[ChunkKey]uint64
}

func NewChunkStore(gen WorldGen) *ChunkStore {
	if gen.Height <= 0 {
		gen.Height = 64
	}
	return &ChunkStore{
		Gen:     gen,
		Chunks:  map[ChunkKey]*Chunk{},
		touched: map[ChunkKey]uint64{},
	}
}
