package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightcycle.ai/internal/sim/voxel"
)

func TestShippedFileMatchesDefaults(t *testing.T) {
	got := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"), zerolog.Nop())
	assert.Equal(t, Defaults(), got)
}

func TestMissingFileFallsBack(t *testing.T) {
	got := Load(filepath.Join(t.TempDir(), "nope.yaml"), zerolog.Nop())
	assert.Equal(t, Defaults(), got)
}

func TestMalformedFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trail: [oops"), 0o644))
	assert.Equal(t, Defaults(), Load(path, zerolog.Nop()))
}

func TestPartialOverrideKeepsDefaults(t *testing.T) {
	tu, notes, err := Parse([]byte("trail:\n  lifetimeSeconds: 4\n  renderMode: client\n"))
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, 4*time.Second, tu.Lifetime())
	assert.Equal(t, RenderIllusion, tu.Trail.RenderMode)
	assert.Equal(t, 0.32, tu.Trail.SampleBaseStep)
	assert.Equal(t, 18, tu.LagCompensation.MaxSamplesPerUpdate)
}

func TestClampsOutOfRange(t *testing.T) {
	tu, notes, err := Parse([]byte("lighting:\n  level: 40\nlagCompensation:\n  onCap: explode\n  maxSamplesPerUpdate: 0\n"))
	require.NoError(t, err)
	assert.Len(t, notes, 3)
	assert.Equal(t, 15, tu.Lighting.Level)
	assert.Equal(t, CapTruncate, tu.LagCompensation.OnCap)
	assert.Equal(t, 1, tu.LagCompensation.MaxSamplesPerUpdate)
}

func TestDerivedValues(t *testing.T) {
	tu := Defaults()
	assert.Equal(t, 100*time.Millisecond, tu.UpdatePeriod())
	assert.Equal(t, 1500*time.Millisecond, tu.SelfImmunity())
	assert.Equal(t, 250*time.Millisecond, tu.Debounce())
	assert.Equal(t, 128.0, tu.IllusionRange())

	tu.Trail.Illusion.ViewDistance = 4
	assert.Equal(t, 16.0, tu.IllusionRange())

	assert.True(t, tu.WorldAllowed("the_grid"))
	assert.False(t, tu.WorldAllowed("Overworld"))
	tu.Worlds.AllowAll = true
	assert.True(t, tu.WorldAllowed("Overworld"))
}

func TestReplaceableMaterials(t *testing.T) {
	tu := Defaults()
	tu.Trail.Replaceable = append(tu.Trail.Replaceable, "GRASS", "LAVA")
	set, unknown := tu.ReplaceableMaterials()
	assert.True(t, set[voxel.Air])
	assert.True(t, set[voxel.ShortGrass])
	assert.False(t, set[voxel.Stone])
	assert.Equal(t, []string{"LAVA"}, unknown)
}
