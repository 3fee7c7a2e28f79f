package cycle

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/mathx"
	"lightcycle.ai/internal/sim/tuning"
)

// nominalDelta is the engine interval the step scaling is calibrated against.
const nominalDelta = 100 * time.Millisecond

const minDisplacement = 0.001

// StepDistance returns the spacing between trail samples. Faster vehicles and
// slower server ticks both shrink the step so the wall stays dense.
func StepDistance(lc tuning.LagCompensation, base, speed float64, elapsed time.Duration) float64 {
	if !lc.Enabled {
		return base
	}
	dt := nominalDelta.Seconds()
	if lc.UseRealDeltaTime && elapsed > 0 {
		dt = math.Max(0.001, elapsed.Seconds())
	}
	speedFactor := mathx.Clamp(speed*1.6, 0.20, 2.2)
	dtFactor := mathx.Clamp(dt/nominalDelta.Seconds(), 0.6, 1.8)
	return mathx.Clamp(base/speedFactor/dtFactor, lc.MinStep, lc.MaxStep)
}

// SamplePoints interpolates from (exclusive) to to (inclusive) every step cells,
// returning at most maxSamples points. capped reports that points were dropped.
func SamplePoints(from, to r3.Vec, step float64, maxSamples int) (pts []r3.Vec, capped bool) {
	delta := r3.Sub(to, from)
	dist := r3.Norm(delta)
	if dist < minDisplacement {
		return nil, false
	}
	step = math.Max(minDisplacement, step)
	n := int(math.Ceil(dist / step))
	if maxSamples < 1 {
		maxSamples = 1
	}
	if n > maxSamples {
		n = maxSamples
		capped = true
	}
	dir := r3.Unit(delta)
	pts = make([]r3.Vec, 0, n)
	for i := 1; i <= n; i++ {
		d := math.Min(dist, float64(i)*step)
		pts = append(pts, r3.Add(from, r3.Scale(d, dir)))
	}
	return pts, capped
}
