package cycle

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "lightcycle.ai/internal/sim/cycle"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// engineMetrics are the engine's counters. The live-segment gauge is observed from
// a mirrored atomic so the collector never touches the store.
type engineMetrics struct {
	placed    metric.Int64Counter
	removed   metric.Int64Counter
	crashes   metric.Int64Counter
	anomalies metric.Int64Counter
	resync    metric.Int64Counter
	live      metric.Int64ObservableGauge

	liveSegments atomic.Int64
	reg          metric.Registration
}

func newEngineMetrics() (*engineMetrics, error) {
	m := meter()
	em := &engineMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&em.placed, "trail.segments.placed", "Trail segments placed"},
		{&em.removed, "trail.segments.removed", "Trail segments removed and restored"},
		{&em.crashes, "cycle.crashes", "Lightcycle crashes"},
		{&em.anomalies, "cycle.anomalies", "Position anomalies detected"},
		{&em.resync, "cycle.resync.changes", "Cell changes sent by viewer resyncs"},
	}
	for _, c := range counters {
		ctr, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
		*c.dst = ctr
	}

	var err error
	em.live, err = m.Int64ObservableGauge(
		"trail.segments.live",
		metric.WithDescription("Live trail segments"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating live segments gauge: %w", err)
	}
	em.reg, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(em.live, em.liveSegments.Load())
			return nil
		},
		em.live,
	)
	if err != nil {
		return nil, fmt.Errorf("registering live segments callback: %w", err)
	}
	return em, nil
}

func (m *engineMetrics) segmentPlaced(mode string) {
	m.placed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *engineMetrics) segmentRemoved() {
	m.removed.Add(context.Background(), 1)
}

func (m *engineMetrics) crash(cause string) {
	m.crashes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cause", cause)))
}

func (m *engineMetrics) anomaly(reason string) {
	m.anomalies.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *engineMetrics) resyncChanges(n int) {
	if n > 0 {
		m.resync.Add(context.Background(), int64(n))
	}
}

func (m *engineMetrics) setLive(n int) { m.liveSegments.Store(int64(n)) }

// unregister detaches the live-segment callback. It is safe to call twice.
func (m *engineMetrics) unregister() error {
	if m.reg == nil {
		return nil
	}
	err := m.reg.Unregister()
	m.reg = nil
	return err
}
