package main

import (
	"fmt"
	"io"

	persistlog "lightcycle.ai/internal/persistence/log"
	"lightcycle.ai/internal/persistence/prefs"
	"lightcycle.ai/internal/sim/world"
)

// writeMetrics renders a minimal Prometheus exposition of the world stats.
func writeMetrics(w io.Writer, s world.Stats, journal *persistlog.Journal, store *prefs.Store) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %v\n", name, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, v)
	}

	gauge("lightcycle_world_tick", "Current world tick.", s.Tick)
	gauge("lightcycle_world_riders", "Connected riders.", s.Riders)
	gauge("lightcycle_world_vehicles", "Vehicles in the world.", s.Vehicles)
	gauge("lightcycle_cycle_sessions", "Active lightcycle sessions.", s.Sessions)
	gauge("lightcycle_trail_segments_live", "Live trail segments.", s.LiveSegments)
	gauge("lightcycle_world_queue_depth", "Inbox backlog depth.", s.QueueInbox)
	gauge("lightcycle_world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", s.StepMS))

	if journal != nil {
		counter("lightcycle_journal_dropped_total", "Journal events dropped because the queue was full.", journal.Dropped())
	}
	if store != nil {
		counter("lightcycle_prefs_dropped_total", "Preference writes that never reached the backend.", store.Dropped())
	}
}
