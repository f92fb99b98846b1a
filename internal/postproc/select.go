package postproc

import "github.com/fretbursts/burst-engine/internal/models"

// Predicate decides whether a burst is kept by Select.
type Predicate func(models.Burst) bool

// Select returns the bursts for which every predicate holds.
func Select(set models.BurstSet, preds ...Predicate) models.BurstSet {
	out := make([]models.Burst, 0, set.Len())
next:
	for i := 0; i < set.Len(); i++ {
		b := set.At(i)
		for _, keep := range preds {
			if !keep(b) {
				continue next
			}
		}
		out = append(out, b)
	}
	return models.MustBurstSet(out)
}

// MinSize keeps bursts with at least n photons.
func MinSize(n int) Predicate {
	return func(b models.Burst) bool { return b.Size() >= n }
}

// MinWidth keeps bursts lasting at least w ticks.
func MinWidth(w int64) Predicate {
	return func(b models.Burst) bool { return b.Width() >= w }
}

// MaxWidth keeps bursts lasting at most w ticks.
func MaxWidth(w int64) Predicate {
	return func(b models.Burst) bool { return b.Width() <= w }
}

// MinRate keeps bursts whose mean rate, photons per tick, is at least r.
func MinRate(r float64) Predicate {
	return func(b models.Burst) bool { return float64(b.Size()) >= r*float64(b.Width()) }
}

// Summary aggregates the bursts of one set.
type Summary struct {
	Count     int
	Photons   int
	MeanSize  float64
	MeanWidth float64
	// MeanRate is the mean of the per-burst rates, photons per tick.
	MeanRate float64
}

// Summarize computes the Summary of set.
func Summarize(set models.BurstSet) Summary {
	s := Summary{Count: set.Len()}
	if s.Count == 0 {
		return s
	}
	var width, rate float64
	for i := 0; i < set.Len(); i++ {
		b := set.At(i)
		s.Photons += b.Size()
		width += float64(b.Width())
		rate += float64(b.Size()) / float64(b.Width())
	}
	n := float64(s.Count)
	s.MeanSize = float64(s.Photons) / n
	s.MeanWidth = width / n
	s.MeanRate = rate / n
	return s
}
