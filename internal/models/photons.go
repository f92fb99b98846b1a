package models

import "fmt"

// PhotonStream is the ordered sequence of photon arrival timestamps of one
// detector sub-stream, in macro-time ticks. Ties are allowed.
type PhotonStream []int64

// Validate reports negative or decreasing timestamps.
func (ph PhotonStream) Validate() error {
	for i, t := range ph {
		if t < 0 {
			return fmt.Errorf("%w: negative timestamp %d at index %d", ErrInvalidInput, t, i)
		}
		if i > 0 && t < ph[i-1] {
			return fmt.Errorf("%w: timestamp %d at index %d precedes %d", ErrInvalidInput, t, i, ph[i-1])
		}
	}
	return nil
}

// Duration is the time between the first and last photon.
func (ph PhotonStream) Duration() int64 {
	if len(ph) == 0 {
		return 0
	}
	return ph[len(ph)-1] - ph[0]
}

// Segment is one constant piece of a background rate, starting at Start.
type Segment struct {
	Start int64
	Rate  float64
}

// BackgroundRate maps a timestamp to the local background rate in events
// per tick.
type BackgroundRate interface {
	RateAt(t int64) float64
}

// Segmented is implemented by piecewise-constant rates that can expose their
// pieces, ordered by Start. The scanner walks them with a cursor instead of
// searching per window.
type Segmented interface {
	BackgroundRate
	Segments() []Segment
}
