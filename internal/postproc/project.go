// Package postproc derives metrics from burst sets and transforms them.
// Every function is pure: inputs are never modified and transformations
// return new sets.
package postproc

import (
	"fmt"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Column extracts one schema column, in record order.
func Column(set models.BurstSet, f models.Field) []int64 {
	out := make([]int64, set.Len())
	for i := range out {
		out[i] = set.At(i).Field(f)
	}
	return out
}

// Starts returns the start timestamp of every burst.
func Starts(set models.BurstSet) []int64 { return Column(set, models.FieldStart) }

// Ends returns the end timestamp of every burst.
func Ends(set models.BurstSet) []int64 { return Column(set, models.FieldEnd) }

// Widths returns end - start of every burst.
func Widths(set models.BurstSet) []int64 { return Column(set, models.FieldWidth) }

// IndexStarts returns the index of the first photon of every burst.
func IndexStarts(set models.BurstSet) []int64 { return Column(set, models.FieldIndexStart) }

// IndexEnds returns the index of the last photon of every burst.
func IndexEnds(set models.BurstSet) []int64 { return Column(set, models.FieldIndexEnd) }

// Sizes returns the photon count of every burst.
func Sizes(set models.BurstSet) []int64 { return Column(set, models.FieldSize) }

// Rates returns size/width of every burst, in photons per tick. A zero width
// cannot come out of the search and panics with *models.InvariantError.
func Rates(set models.BurstSet) []float64 {
	out := make([]float64, set.Len())
	for i := range out {
		b := set.At(i)
		if b.Width() <= 0 {
			panic(&models.InvariantError{Index: i, Reason: fmt.Sprintf("rate of burst with width %d", b.Width())})
		}
		out[i] = float64(b.Size()) / float64(b.Width())
	}
	return out
}

// Separations returns start[i+1] - end[i] for consecutive bursts; it is
// empty for fewer than two bursts.
func Separations(set models.BurstSet) []int64 {
	if set.Len() < 2 {
		return []int64{}
	}
	out := make([]int64, set.Len()-1)
	for i := range out {
		out[i] = set.At(i+1).Start() - set.At(i).End()
	}
	return out
}
