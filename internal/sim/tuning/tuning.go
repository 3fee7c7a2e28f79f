package tuning

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"lightcycle.ai/internal/sim/mathx"
	"lightcycle.ai/internal/sim/voxel"
)

type RenderMode string

const (
	RenderShared   RenderMode = "SHARED"
	RenderIllusion RenderMode = "ILLUSION"
)

type CapPolicy string

const (
	CapTruncate CapPolicy = "TRUNCATE"
	CapAnomaly  CapPolicy = "ANOMALY"
)

type Tuning struct {
	Worlds          Worlds          `yaml:"worlds"`
	Trail           Trail           `yaml:"trail"`
	Visual          Visual          `yaml:"visual"`
	LagCompensation LagCompensation `yaml:"lagCompensation"`
	PositionAnomaly PositionAnomaly `yaml:"positionAnomaly"`
	Debug           Debug           `yaml:"debug"`
	Crash           Crash           `yaml:"crash"`
	Cycle           Cycle           `yaml:"cycle"`
	Baton           Baton           `yaml:"baton"`
	Lighting        Lighting        `yaml:"lighting"`
	World           World           `yaml:"world"`
}

type Worlds struct {
	AllowAll bool     `yaml:"allowAll"`
	Allowed  []string `yaml:"allowed"`
}

type Trail struct {
	RenderMode          RenderMode `yaml:"renderMode"`
	LifetimeSeconds     float64    `yaml:"lifetimeSeconds"`
	SelfImmunitySeconds float64    `yaml:"selfImmunitySeconds"`
	SampleBaseStep      float64    `yaml:"sampleBaseStep"`
	UpdatePeriodTicks   int        `yaml:"updatePeriodTicks"`
	EvictBatch          int        `yaml:"evictBatch"`
	Illusion            Illusion   `yaml:"illusion"`
	Replaceable         []string   `yaml:"replaceable"`
}

type Illusion struct {
	ViewDistance        int `yaml:"viewDistance"`
	MaxChangesPerResync int `yaml:"maxChangesPerResync"`
	ResyncDelayTicks    int `yaml:"resyncDelayTicks"`
}

type Visual struct {
	GlowingOutline bool `yaml:"glowingOutline"`
}

type LagCompensation struct {
	Enabled             bool      `yaml:"enabled"`
	UseRealDeltaTime    bool      `yaml:"useRealDeltaTime"`
	MinStep             float64   `yaml:"minStep"`
	MaxStep             float64   `yaml:"maxStep"`
	MaxSamplesPerUpdate int       `yaml:"maxSamplesPerUpdate"`
	OnCap               CapPolicy `yaml:"onCap"`
}

type PositionAnomaly struct {
	Enabled         bool    `yaml:"enabled"`
	MaxStepDistance float64 `yaml:"maxStepDistance"`
	MaxStepVertical float64 `yaml:"maxStepVertical"`
	ClearTrail      bool    `yaml:"clearTrail"`
	PauseEmission   bool    `yaml:"pauseEmission"`
	CooldownSeconds float64 `yaml:"cooldownSeconds"`
	DisableCooldown bool    `yaml:"disableCooldown"`
}

type Debug struct {
	Enabled   bool `yaml:"enabled"`
	ToOpsOnly bool `yaml:"toOpsOnly"`
}

type Crash struct {
	DriverDamage            float64 `yaml:"driverDamage"`
	InstantKill             bool    `yaml:"instantKill"`
	WorldWallSpeedThreshold float64 `yaml:"worldWallSpeedThreshold"`
}

type Cycle struct {
	DismountGraceTicks   int     `yaml:"dismountGraceTicks"`
	HumIntervalTicks     int     `yaml:"humIntervalTicks"`
	SpawnCooldownSeconds float64 `yaml:"spawnCooldownSeconds"`
	MaxSpeed             float64 `yaml:"maxSpeed"`
}

type Baton struct {
	DebounceMs int `yaml:"debounceMs"`
}

type Lighting struct {
	Enabled bool `yaml:"enabled"`
	Level   int  `yaml:"level"`
}

type World struct {
	TickMillis         int `yaml:"tickMillis"`
	PartitionIdleTicks int `yaml:"partitionIdleTicks"`
	Height             int `yaml:"height"`
	FloorY             int `yaml:"floorY"`
	Boundary           int `yaml:"boundary"`
}

func Defaults() Tuning {
	return Tuning{
		Worlds: Worlds{Allowed: []string{"The_Grid"}},
		Trail: Trail{
			RenderMode:          RenderShared,
			LifetimeSeconds:     10,
			SelfImmunitySeconds: 1.5,
			SampleBaseStep:      0.32,
			UpdatePeriodTicks:   2,
			EvictBatch:          2,
			Illusion: Illusion{
				ViewDistance:        128,
				MaxChangesPerResync: 200,
				ResyncDelayTicks:    20,
			},
			Replaceable: []string{"AIR", "CAVE_AIR", "VOID_AIR", "SHORT_GRASS", "TALL_GRASS", "SNOW"},
		},
		Visual: Visual{GlowingOutline: true},
		LagCompensation: LagCompensation{
			Enabled:             true,
			UseRealDeltaTime:    true,
			MinStep:             0.22,
			MaxStep:             0.55,
			MaxSamplesPerUpdate: 18,
			OnCap:               CapTruncate,
		},
		PositionAnomaly: PositionAnomaly{
			Enabled:         true,
			MaxStepDistance: 6,
			MaxStepVertical: 3,
			ClearTrail:      true,
			PauseEmission:   true,
			CooldownSeconds: 3,
		},
		Debug: Debug{Enabled: true, ToOpsOnly: true},
		Crash: Crash{
			DriverDamage:            10,
			WorldWallSpeedThreshold: 0.75,
		},
		Cycle: Cycle{
			DismountGraceTicks:   40,
			HumIntervalTicks:     18,
			SpawnCooldownSeconds: 5,
			MaxSpeed:             0.52,
		},
		Baton:    Baton{DebounceMs: 250},
		Lighting: Lighting{Enabled: true, Level: 12},
		World: World{
			TickMillis:         50,
			PartitionIdleTicks: 600,
			Height:             64,
			FloorY:             4,
			Boundary:           256,
		},
	}
}

// Parse decodes raw over the defaults; keys absent from raw keep their default.
func Parse(raw []byte) (Tuning, []string, error) {
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Defaults(), nil, fmt.Errorf("tuning.yaml: %w", err)
	}
	notes := t.Normalize()
	return t, notes, nil
}

// Load reads the tuning file at path. A missing or malformed file yields the
// defaults; every fallback and clamp is logged.
func Load(path string, log zerolog.Logger) Tuning {
	if path == "" {
		return Defaults()
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("tuning file missing, using defaults")
		return Defaults()
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("tuning file unreadable, using defaults")
		return Defaults()
	}
	t, notes, err := Parse(raw)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("tuning file malformed, using defaults")
		return t
	}
	for _, n := range notes {
		log.Warn().Str("path", path).Msg(n)
	}
	return t
}

// Normalize clamps out-of-range values in place and reports each adjustment.
func (t *Tuning) Normalize() []string {
	var notes []string
	clampF := func(name string, v *float64, lo, hi float64) {
		c := mathx.Clamp(*v, lo, hi)
		if c != *v {
			notes = append(notes, fmt.Sprintf("%s=%v out of range, clamped to %v", name, *v, c))
			*v = c
		}
	}
	clampI := func(name string, v *int, lo, hi int) {
		c := mathx.ClampInt(*v, lo, hi)
		if c != *v {
			notes = append(notes, fmt.Sprintf("%s=%d out of range, clamped to %d", name, *v, c))
			*v = c
		}
	}

	mode := RenderMode(strings.ToUpper(string(t.Trail.RenderMode)))
	switch mode {
	case RenderShared, RenderIllusion:
	case "SERVER":
		mode = RenderShared
	case "CLIENT":
		mode = RenderIllusion
	default:
		notes = append(notes, fmt.Sprintf("trail.renderMode=%q unknown, using %s", t.Trail.RenderMode, RenderShared))
		mode = RenderShared
	}
	t.Trail.RenderMode = mode

	clampF("trail.lifetimeSeconds", &t.Trail.LifetimeSeconds, 0.5, 600)
	clampF("trail.selfImmunitySeconds", &t.Trail.SelfImmunitySeconds, 0, 60)
	clampF("trail.sampleBaseStep", &t.Trail.SampleBaseStep, 0.05, 4)
	clampI("trail.updatePeriodTicks", &t.Trail.UpdatePeriodTicks, 1, 20)
	clampI("trail.evictBatch", &t.Trail.EvictBatch, 1, 64)
	clampI("trail.illusion.viewDistance", &t.Trail.Illusion.ViewDistance, 0, 512)
	clampI("trail.illusion.maxChangesPerResync", &t.Trail.Illusion.MaxChangesPerResync, 2, 10000)
	clampI("trail.illusion.resyncDelayTicks", &t.Trail.Illusion.ResyncDelayTicks, 0, 200)

	clampF("lagCompensation.minStep", &t.LagCompensation.MinStep, 0.05, 4)
	clampF("lagCompensation.maxStep", &t.LagCompensation.MaxStep, t.LagCompensation.MinStep, 4)
	clampI("lagCompensation.maxSamplesPerUpdate", &t.LagCompensation.MaxSamplesPerUpdate, 1, 256)
	policy := CapPolicy(strings.ToUpper(string(t.LagCompensation.OnCap)))
	if policy != CapTruncate && policy != CapAnomaly {
		notes = append(notes, fmt.Sprintf("lagCompensation.onCap=%q unknown, using %s", t.LagCompensation.OnCap, CapTruncate))
		policy = CapTruncate
	}
	t.LagCompensation.OnCap = policy

	clampF("positionAnomaly.maxStepDistance", &t.PositionAnomaly.MaxStepDistance, 0.5, 1000)
	clampF("positionAnomaly.maxStepVertical", &t.PositionAnomaly.MaxStepVertical, 0.5, 1000)
	clampF("positionAnomaly.cooldownSeconds", &t.PositionAnomaly.CooldownSeconds, 0, 600)

	clampF("crash.driverDamage", &t.Crash.DriverDamage, 0, 1000)
	clampF("crash.worldWallSpeedThreshold", &t.Crash.WorldWallSpeedThreshold, 0, 10)

	clampI("cycle.dismountGraceTicks", &t.Cycle.DismountGraceTicks, 1, 6000)
	clampI("cycle.humIntervalTicks", &t.Cycle.HumIntervalTicks, 1, 6000)
	clampF("cycle.spawnCooldownSeconds", &t.Cycle.SpawnCooldownSeconds, 0, 3600)
	clampF("cycle.maxSpeed", &t.Cycle.MaxSpeed, 0.15, 1.0)

	clampI("baton.debounceMs", &t.Baton.DebounceMs, 0, 10000)
	clampI("lighting.level", &t.Lighting.Level, 0, 15)

	clampI("world.tickMillis", &t.World.TickMillis, 5, 1000)
	clampI("world.partitionIdleTicks", &t.World.PartitionIdleTicks, 1, 1<<20)
	clampI("world.height", &t.World.Height, 8, 256)
	clampI("world.floorY", &t.World.FloorY, 0, t.World.Height-4)
	clampI("world.boundary", &t.World.Boundary, 0, 1<<16)
	return notes
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func (t Tuning) Lifetime() time.Duration        { return seconds(t.Trail.LifetimeSeconds) }
func (t Tuning) SelfImmunity() time.Duration    { return seconds(t.Trail.SelfImmunitySeconds) }
func (t Tuning) AnomalyCooldown() time.Duration { return seconds(t.PositionAnomaly.CooldownSeconds) }
func (t Tuning) SpawnCooldown() time.Duration   { return seconds(t.Cycle.SpawnCooldownSeconds) }
func (t Tuning) Debounce() time.Duration        { return time.Duration(t.Baton.DebounceMs) * time.Millisecond }
func (t Tuning) TickDuration() time.Duration    { return time.Duration(t.World.TickMillis) * time.Millisecond }

// UpdatePeriod is the interval between trail engine ticks.
func (t Tuning) UpdatePeriod() time.Duration {
	return time.Duration(t.Trail.UpdatePeriodTicks) * t.TickDuration()
}

// IllusionRange is the radius within which viewers receive per-viewer overrides.
func (t Tuning) IllusionRange() float64 {
	return float64(mathx.ClampInt(t.Trail.Illusion.ViewDistance, 16, 1<<16))
}

func (t Tuning) WorldAllowed(name string) bool {
	if t.Worlds.AllowAll {
		return true
	}
	for _, w := range t.Worlds.Allowed {
		if strings.EqualFold(w, name) {
			return true
		}
	}
	return false
}

// ReplaceableMaterials resolves the configured names; unknown names are returned
// separately so the caller can log them.
func (t Tuning) ReplaceableMaterials() (map[voxel.Material]bool, []string) {
	out := map[voxel.Material]bool{}
	var unknown []string
	for _, name := range t.Trail.Replaceable {
		m, ok := voxel.ParseMaterial(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out[m] = true
	}
	return out, unknown
}
