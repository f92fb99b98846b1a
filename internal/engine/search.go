package engine

import (
	"log/slog"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Searcher runs the sliding-window burst search over one photon stream.
type Searcher struct {
	logger *slog.Logger
}

// NewSearcher constructs a Searcher.
func NewSearcher(logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{logger: logger}
}

// Search scans ts and returns the bursts of at least p.MinPhotons photons
// where every window of p.Window photons has a rate above the threshold.
// The window starting at photon i has rate (m-1)/(ts[i+m-1]-ts[i]) and is
// compared with the threshold evaluated at ts[i]; a window spanning zero
// time never qualifies. Maximal runs of consecutive qualifying windows form
// one burst from the first window's first photon to the last window's last
// photon; runs whose spans overlap are merged. p must have passed Validate.
func (s *Searcher) Search(ts models.PhotonStream, bg models.BackgroundRate, p models.SearchParams) models.BurstSet {
	m := p.Window
	n := len(ts)
	if n < m {
		return models.EmptyBurstSet
	}

	level := newLevelCursor(p.Threshold, bg)
	windowPhotons := float64(m - 1)
	bursts := make([]models.Burst, 0, 64)

	// A run that starts before the pending candidate ends overlaps it and
	// extends it; the size filter applies to the merged span.
	pending := false
	pstart, pend := 0, 0
	emit := func(istart, iend int) {
		if pending && istart <= pend {
			pend = iend
			return
		}
		if pending && pend-pstart+1 >= p.MinPhotons {
			bursts = append(bursts, models.NewBurst(ts, pstart, pend))
		}
		pending, pstart, pend = true, istart, iend
	}

	inBurst := false
	istart := 0
	last := n - m
	for i := 0; i <= last; i++ {
		dt := ts[i+m-1] - ts[i]
		qualifies := dt > 0 && windowPhotons > level.at(ts[i])*float64(dt)
		switch {
		case qualifies && !inBurst:
			inBurst = true
			istart = i
		case !qualifies && inBurst:
			inBurst = false
			// the previous window, i-1, was the last of the run
			emit(istart, i+m-2)
		}
	}
	if inBurst {
		emit(istart, n-1)
	}
	if pending && pend-pstart+1 >= p.MinPhotons {
		bursts = append(bursts, models.NewBurst(ts, pstart, pend))
	}

	s.logger.Debug("burst search done",
		slog.Int("photons", n),
		slog.Int("bursts", len(bursts)),
		slog.String("threshold", p.Threshold.String()))
	return models.MustBurstSet(bursts)
}

// levelCursor yields the threshold rate for non-decreasing timestamps. For
// segmented backgrounds it advances through the segments instead of
// searching, keeping the scan linear.
type levelCursor struct {
	threshold models.Threshold
	bg        models.BackgroundRate
	segments  []models.Segment
	idx       int
	fixed     bool
	value     float64
}

func newLevelCursor(th models.Threshold, bg models.BackgroundRate) *levelCursor {
	c := &levelCursor{threshold: th, bg: bg}
	if !th.UsesBackground() || bg == nil {
		c.fixed = true
		c.value = th.Level(0)
		return c
	}
	if seg, ok := bg.(models.Segmented); ok && len(seg.Segments()) > 0 {
		c.segments = seg.Segments()
		c.value = th.Level(c.segments[0].Rate)
	}
	return c
}

func (c *levelCursor) at(t int64) float64 {
	if c.fixed {
		return c.value
	}
	if c.segments == nil {
		return c.threshold.Level(c.bg.RateAt(t))
	}
	advanced := false
	for c.idx+1 < len(c.segments) && c.segments[c.idx+1].Start <= t {
		c.idx++
		advanced = true
	}
	if advanced {
		c.value = c.threshold.Level(c.segments[c.idx].Rate)
	}
	return c.value
}
