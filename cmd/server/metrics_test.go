package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"lightcycle.ai/internal/persistence/prefs"
	"lightcycle.ai/internal/sim/world"
)

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, world.Stats{Tick: 40, Riders: 2, Sessions: 1, LiveSegments: 17, StepMS: 0.25}, nil, prefs.NewMemory())

	out := buf.String()
	assert.Contains(t, out, "lightcycle_world_tick 40\n")
	assert.Contains(t, out, "lightcycle_world_riders 2\n")
	assert.Contains(t, out, "lightcycle_trail_segments_live 17\n")
	assert.Contains(t, out, "lightcycle_world_step_ms 0.250\n")
	assert.Contains(t, out, "# TYPE lightcycle_prefs_dropped_total counter\n")
	assert.NotContains(t, out, "journal")
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, isLoopbackRemote("127.0.0.1:5000"))
	assert.True(t, isLoopbackRemote("[::1]:5000"))
	assert.False(t, isLoopbackRemote("10.1.2.3:5000"))
	assert.False(t, isLoopbackRemote("garbage"))
}
