package world

import (
	"strings"

	"lightcycle.ai/internal/sim/tuning"
)

// RealmConfig describes one named world hosted by the simulation.
type RealmConfig struct {
	Name            string
	Seed            int64
	Height          int
	FloorY          int
	BoundaryR       int
	PillarPermille  int
	FoliagePermille int
}

type WorldConfig struct {
	Realms       []RealmConfig
	DefaultRealm string

	TickMillis         int
	UpdatePeriodTicks  int
	PartitionIdleTicks int
	ViewRadius         int
	MaxHP              float64
	WalkSpeed          float64

	// OperatorToken grants operator rights to clients presenting it; empty disables.
	OperatorToken string
}

// ConfigFromTuning derives the host settings from tuning. The first realm is the
// trail world; "Overworld" is always hosted as a second, plain realm.
func ConfigFromTuning(t tuning.Tuning, seed int64) WorldConfig {
	grid := "The_Grid"
	if len(t.Worlds.Allowed) > 0 && strings.TrimSpace(t.Worlds.Allowed[0]) != "" {
		grid = strings.TrimSpace(t.Worlds.Allowed[0])
	}
	return WorldConfig{
		Realms: []RealmConfig{
			{
				Name:            grid,
				Seed:            seed,
				Height:          t.World.Height,
				FloorY:          t.World.FloorY,
				BoundaryR:       t.World.Boundary,
				PillarPermille:  4,
				FoliagePermille: 30,
			},
			{
				Name:            "Overworld",
				Seed:            seed + 1,
				Height:          t.World.Height,
				FloorY:          t.World.FloorY,
				BoundaryR:       t.World.Boundary,
				PillarPermille:  25,
				FoliagePermille: 200,
			},
		},
		DefaultRealm:       grid,
		TickMillis:         t.World.TickMillis,
		UpdatePeriodTicks:  t.Trail.UpdatePeriodTicks,
		PartitionIdleTicks: t.World.PartitionIdleTicks,
		ViewRadius:         int(t.IllusionRange()),
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.TickMillis <= 0 {
		c.TickMillis = 50
	}
	if c.UpdatePeriodTicks <= 0 {
		c.UpdatePeriodTicks = 2
	}
	if c.PartitionIdleTicks <= 0 {
		c.PartitionIdleTicks = 600
	}
	if c.ViewRadius <= 0 {
		c.ViewRadius = 64
	}
	if c.MaxHP <= 0 {
		c.MaxHP = 20
	}
	if c.WalkSpeed <= 0 {
		c.WalkSpeed = 0.2
	}
	if len(c.Realms) == 0 {
		c.Realms = []RealmConfig{{Name: "The_Grid", Height: 64, FloorY: 4, BoundaryR: 256}}
	}
	if c.DefaultRealm == "" {
		c.DefaultRealm = c.Realms[0].Name
	}
}
