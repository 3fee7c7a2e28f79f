package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightcycle.ai/internal/sim/voxel"
)

func TestBackendsSurviveReopen(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendYAML} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			flynn := uuid.New()
			clu := uuid.New()

			st, err := Open(backend, dir, zerolog.Nop())
			require.NoError(t, err)
			st.SetColor(flynn, voxel.Blue)
			st.SetColor(clu, voxel.Orange)
			st.SetColor(flynn, voxel.Green)

			c, ok := st.Color(flynn)
			require.True(t, ok)
			assert.Equal(t, voxel.Green, c)
			require.NoError(t, st.Close())

			st, err = Open(backend, dir, zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })

			assert.Equal(t, 2, st.Len())
			c, ok = st.Color(flynn)
			require.True(t, ok)
			assert.Equal(t, voxel.Green, c)
			c, ok = st.Color(clu)
			require.True(t, ok)
			assert.Equal(t, voxel.Orange, c)

			_, ok = st.Color(uuid.New())
			assert.False(t, ok)
			assert.Zero(t, st.Dropped())
		})
	}
}

func TestYAMLSkipsBadEntries(t *testing.T) {
	dir := t.TempDir()
	owner := uuid.New()
	doc := "colors:\n  " + owner.String() + ": purple\n  not-a-uuid: RED\n  " + uuid.NewString() + ": CHARTREUSE\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prefs.yaml"), []byte(doc), 0o644))

	st, err := Open(BackendYAML, dir, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.Equal(t, 1, st.Len())
	c, ok := st.Color(owner)
	require.True(t, ok)
	assert.Equal(t, voxel.Purple, c)
}

func TestYAMLMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prefs.yaml"), []byte("colors: [\n"), 0o644))

	_, err := Open(BackendYAML, dir, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenNoneAndUnknown(t *testing.T) {
	st, err := Open(BackendNone, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	st.SetColor(uuid.Nil, voxel.Red)
	c, ok := st.Color(uuid.Nil)
	assert.True(t, ok)
	assert.Equal(t, voxel.Red, c)
	assert.NoError(t, st.Close())
	assert.NoError(t, st.Close())

	_, err = Open("postgres", t.TempDir(), zerolog.Nop())
	assert.ErrorContains(t, err, "unknown backend")
}

func TestQueueFullCountsDrop(t *testing.T) {
	st := &Store{colors: map[uuid.UUID]voxel.Color{}, log: zerolog.Nop(), ch: make(chan row, 1)}
	st.SetColor(uuid.New(), voxel.Red)
	st.SetColor(uuid.New(), voxel.Blue)

	assert.Equal(t, uint64(1), st.Dropped())
	assert.Equal(t, 2, st.Len())
}

func TestSetColorAfterCloseStaysInMemory(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(BackendSQLite, dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	owner := uuid.New()
	st.SetColor(owner, voxel.Yellow)
	c, ok := st.Color(owner)
	assert.True(t, ok)
	assert.Equal(t, voxel.Yellow, c)
	assert.Zero(t, st.Dropped())
}
