package postproc

import (
	"fmt"
	"sort"

	"github.com/fretbursts/burst-engine/internal/models"
)

// Coverage marks every photon of ts that lies inside a burst span
// [istart, iend]. ts must be the stream the burst indices refer to.
func Coverage(ts models.PhotonStream, set models.BurstSet) []bool {
	mask := make([]bool, len(ts))
	for i := 0; i < set.Len(); i++ {
		b := set.At(i)
		if b.IndexEnd() >= len(ts) {
			panic(&models.InvariantError{Index: i, Reason: fmt.Sprintf("iend %d beyond stream of %d photons", b.IndexEnd(), len(ts))})
		}
		for k := b.IndexStart(); k <= b.IndexEnd(); k++ {
			mask[k] = true
		}
	}
	return mask
}

// CoverageCount returns the number of photons marked by Coverage.
func CoverageCount(ts models.PhotonStream, set models.BurstSet) int {
	count := 0
	for _, in := range Coverage(ts, set) {
		if in {
			count++
		}
	}
	return count
}

// CountPhotons counts, for every burst, the photons of sub that arrive
// within [tstart, tend]. Used to split burst sizes by detector, for example
// donor and acceptor counts of a burst found on the combined stream.
func CountPhotons(set models.BurstSet, sub models.PhotonStream) []int {
	counts := make([]int, set.Len())
	lo := 0
	for i := range counts {
		b := set.At(i)
		rest := sub[lo:]
		first := sort.Search(len(rest), func(k int) bool { return rest[k] >= b.Start() })
		past := sort.Search(len(rest), func(k int) bool { return rest[k] > b.End() })
		counts[i] = past - first
		lo += first
	}
	return counts
}
