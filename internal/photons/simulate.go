package photons

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Simulation describes a synthetic two-color measurement: Poisson
// background on each detector plus bursts of photons from single
// molecules crossing the observation volume. Rates are per tick.
type Simulation struct {
	Duration     int64
	DonorBg      float64
	AcceptorBg   float64
	BurstRate    float64
	BurstPhotons int
	BurstWidth   int64
	// Efficiency is the fraction of burst photons detected as acceptor.
	Efficiency float64
}

// Validate reports settings that cannot produce a stream.
func (s Simulation) Validate() error {
	switch {
	case s.Duration <= 0:
		return fmt.Errorf("%w: simulation duration %d must be positive", models.ErrInvalidConfig, s.Duration)
	case s.DonorBg < 0 || s.AcceptorBg < 0 || s.BurstRate < 0:
		return fmt.Errorf("%w: negative simulation rate", models.ErrInvalidConfig)
	case s.BurstRate > 0 && (s.BurstPhotons <= 0 || s.BurstWidth <= 0):
		return fmt.Errorf("%w: bursts need positive photons and width", models.ErrInvalidConfig)
	case s.Efficiency < 0 || s.Efficiency > 1:
		return fmt.Errorf("%w: efficiency %g outside [0, 1]", models.ErrInvalidConfig, s.Efficiency)
	}
	return nil
}

// Simulate draws the donor and acceptor streams of s.
func Simulate(rng *rand.Rand, s Simulation) (donor, acceptor models.PhotonStream, err error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	donor = poisson(rng, s.DonorBg, s.Duration)
	acceptor = poisson(rng, s.AcceptorBg, s.Duration)

	for _, start := range poisson(rng, s.BurstRate, s.Duration) {
		n := 1 + rng.Intn(2*s.BurstPhotons)
		for k := 0; k < n; k++ {
			t := start + rng.Int63n(s.BurstWidth)
			if t >= s.Duration {
				continue
			}
			if rng.Float64() < s.Efficiency {
				acceptor = append(acceptor, t)
			} else {
				donor = append(donor, t)
			}
		}
	}
	slices.Sort(donor)
	slices.Sort(acceptor)
	return donor, acceptor, nil
}

// poisson draws the arrival times of a Poisson process in [0, duration).
func poisson(rng *rand.Rand, rate float64, duration int64) models.PhotonStream {
	if rate <= 0 {
		return models.PhotonStream{}
	}
	ts := make(models.PhotonStream, 0, int(rate*float64(duration))+1)
	t := 0.0
	for {
		t += rng.ExpFloat64() / rate
		if t >= float64(duration) {
			return ts
		}
		ts = append(ts, int64(t))
	}
}
