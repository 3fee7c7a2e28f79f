package voxel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pos addresses a single cell of the grid.
type Pos struct {
	X, Y, Z int
}

func (p Pos) Add(dx, dy, dz int) Pos {
	return Pos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

func (p Pos) Up(n int) Pos { return Pos{X: p.X, Y: p.Y + n, Z: p.Z} }

// Vec returns the cell's minimum corner.
func (p Pos) Vec() r3.Vec {
	return r3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

// DistSq is the squared distance from the cell's minimum corner to v.
func (p Pos) DistSq(v r3.Vec) float64 {
	return r3.Norm2(r3.Sub(p.Vec(), v))
}

// Floor returns the cell containing v.
func Floor(v r3.Vec) Pos {
	return Pos{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// Horizontal drops the vertical component.
func Horizontal(v r3.Vec) r3.Vec { return r3.Vec{X: v.X, Z: v.Z} }
