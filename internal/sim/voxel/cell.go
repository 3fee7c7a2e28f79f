package voxel

import "strings"

// Material identifies what occupies a cell.
type Material uint16

const (
	Air Material = iota
	CaveAir
	VoidAir
	ShortGrass
	TallGrass
	Snow
	Stone
	Dirt
	GridFloor
	Glass
	Light

	WhitePane
	RedPane
	BluePane
	OrangePane
	PurplePane
	GreenPane
	YellowPane
	PinkPane

	materialCount
)

type materialInfo struct {
	name  string
	solid bool
	air   bool
	pane  bool
}

var materials = [materialCount]materialInfo{
	Air:        {name: "AIR", air: true},
	CaveAir:    {name: "CAVE_AIR", air: true},
	VoidAir:    {name: "VOID_AIR", air: true},
	ShortGrass: {name: "SHORT_GRASS"},
	TallGrass:  {name: "TALL_GRASS"},
	Snow:       {name: "SNOW"},
	Stone:      {name: "STONE", solid: true},
	Dirt:       {name: "DIRT", solid: true},
	GridFloor:  {name: "GRID_FLOOR", solid: true},
	Glass:      {name: "GLASS", solid: true},
	Light:      {name: "LIGHT"},
	WhitePane:  {name: "WHITE_STAINED_GLASS_PANE", solid: true, pane: true},
	RedPane:    {name: "RED_STAINED_GLASS_PANE", solid: true, pane: true},
	BluePane:   {name: "BLUE_STAINED_GLASS_PANE", solid: true, pane: true},
	OrangePane: {name: "ORANGE_STAINED_GLASS_PANE", solid: true, pane: true},
	PurplePane: {name: "PURPLE_STAINED_GLASS_PANE", solid: true, pane: true},
	GreenPane:  {name: "GREEN_STAINED_GLASS_PANE", solid: true, pane: true},
	YellowPane: {name: "YELLOW_STAINED_GLASS_PANE", solid: true, pane: true},
	PinkPane:   {name: "PINK_STAINED_GLASS_PANE", solid: true, pane: true},
}

func (m Material) valid() bool { return m < materialCount }

func (m Material) String() string {
	if !m.valid() {
		return "UNKNOWN"
	}
	return materials[m].name
}

func (m Material) Solid() bool { return m.valid() && materials[m].solid }

// IsAir reports plain air variants only; foliage and snow are not air.
func (m Material) IsAir() bool { return m.valid() && materials[m].air }

func (m Material) IsPane() bool { return m.valid() && materials[m].pane }

// ParseMaterial resolves a palette name, case-insensitively.
func ParseMaterial(name string) (Material, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "GRASS" {
		// Older palettes call the short foliage plain GRASS.
		return ShortGrass, true
	}
	for i, info := range materials {
		if info.name == name {
			return Material(i), true
		}
	}
	return 0, false
}

// Faces is the pane connectivity bitmask.
type Faces uint8

const (
	North Faces = 1 << iota
	South
	East
	West
)

// Cell is the full state of one grid cell.
type Cell struct {
	Material Material `json:"m" yaml:"m"`
	Faces    Faces    `json:"f,omitempty" yaml:"f,omitempty"`
	Level    uint8    `json:"l,omitempty" yaml:"l,omitempty"`
}

func (c Cell) IsZero() bool { return c == Cell{} }

func AirCell() Cell { return Cell{Material: Air} }

func LightCell(level uint8) Cell {
	if level > 15 {
		level = 15
	}
	return Cell{Material: Light, Level: level}
}
