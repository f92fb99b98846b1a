// Package background provides piecewise-constant background rate lookups
// consumed by the burst search.
package background

import (
	"fmt"
	"sort"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Constant is a background rate that never changes, in events per tick.
type Constant float64

// RateAt implements models.BackgroundRate.
func (c Constant) RateAt(int64) float64 { return float64(c) }

// Segments implements models.Segmented.
func (c Constant) Segments() []models.Segment {
	return []models.Segment{{Start: 0, Rate: float64(c)}}
}

// Piecewise is a rate made of constant segments ordered by start time.
type Piecewise struct {
	segments []models.Segment
}

// NewPiecewise validates and copies segments. Starts must be strictly
// increasing and rates non-negative.
func NewPiecewise(segments []models.Segment) (*Piecewise, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: background needs at least one segment", models.ErrInvalidInput)
	}
	for i, seg := range segments {
		if !(seg.Rate >= 0) {
			return nil, fmt.Errorf("%w: segment %d has rate %g", models.ErrInvalidInput, i, seg.Rate)
		}
		if i > 0 && seg.Start <= segments[i-1].Start {
			return nil, fmt.Errorf("%w: segment %d starts at %d, not after %d", models.ErrInvalidInput, i, seg.Start, segments[i-1].Start)
		}
	}
	return &Piecewise{segments: append([]models.Segment(nil), segments...)}, nil
}

// NewPeriodic builds the rate of a background fitted over consecutive
// periods of equal length: segment k starts at k*period.
func NewPeriodic(period int64, rates []float64) (*Piecewise, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: background period %d must be positive", models.ErrInvalidInput, period)
	}
	segments := make([]models.Segment, len(rates))
	for i, rate := range rates {
		segments[i] = models.Segment{Start: int64(i) * period, Rate: rate}
	}
	return NewPiecewise(segments)
}

// RateAt returns the rate of the segment starting at or before t. A
// timestamp equal to a segment start belongs to that segment; timestamps
// before the first start use the first segment.
func (p *Piecewise) RateAt(t int64) float64 {
	i := sort.Search(len(p.segments), func(i int) bool { return p.segments[i].Start > t })
	if i == 0 {
		return p.segments[0].Rate
	}
	return p.segments[i-1].Rate
}

// Segments implements models.Segmented.
func (p *Piecewise) Segments() []models.Segment {
	return p.segments
}

// Sum returns the rate of a stream formed by merging streams with the given
// rates. A single rate is returned unchanged.
func Sum(rates ...models.BackgroundRate) models.BackgroundRate {
	if len(rates) == 0 {
		return Constant(0)
	}
	if len(rates) == 1 {
		return rates[0]
	}
	segmented := make([]models.Segmented, 0, len(rates))
	for _, r := range rates {
		s, ok := r.(models.Segmented)
		if !ok {
			return sum(rates)
		}
		segmented = append(segmented, s)
	}
	return mergeSegments(segmented)
}

type sum []models.BackgroundRate

func (s sum) RateAt(t int64) float64 {
	total := 0.0
	for _, r := range s {
		total += r.RateAt(t)
	}
	return total
}

// mergeSegments flattens several segmented rates into one Piecewise whose
// boundaries are the union of theirs.
func mergeSegments(rates []models.Segmented) *Piecewise {
	starts := make([]int64, 0)
	for _, r := range rates {
		for _, seg := range r.Segments() {
			starts = append(starts, seg.Start)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	segments := make([]models.Segment, 0, len(starts))
	for i, start := range starts {
		if i > 0 && start == starts[i-1] {
			continue
		}
		total := 0.0
		for _, r := range rates {
			total += r.RateAt(start)
		}
		segments = append(segments, models.Segment{Start: start, Rate: total})
	}
	return &Piecewise{segments: segments}
}
