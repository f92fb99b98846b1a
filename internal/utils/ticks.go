package utils

import (
	"fmt"
	"math"
	"time"
)

// Macro-time timestamps count ticks of the acquisition clock. clockPeriod
// is the length of one tick in seconds.

// Ticks converts a duration into whole clock ticks, rounding to nearest.
func Ticks(d time.Duration, clockPeriod float64) (int64, error) {
	if !(clockPeriod > 0) {
		return 0, fmt.Errorf("clock period %g must be positive", clockPeriod)
	}
	ticks := math.Round(d.Seconds() / clockPeriod)
	if ticks > math.MaxInt64 || ticks < math.MinInt64 {
		return 0, fmt.Errorf("duration %s overflows clock ticks", d)
	}
	return int64(ticks), nil
}

// PerTick converts a rate in Hz into photons per clock tick.
func PerTick(hz, clockPeriod float64) float64 {
	return hz * clockPeriod
}

// Hz converts a rate in photons per clock tick into Hz.
func Hz(perTick, clockPeriod float64) float64 {
	if clockPeriod == 0 {
		return 0
	}
	return perTick / clockPeriod
}
