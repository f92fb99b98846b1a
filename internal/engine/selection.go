package engine

import (
	"sort"

	"github.com/fretbursts/burst-engine/internal/models"
)

// mergeStreams combines sorted sub-streams into one sorted stream. A single
// stream is returned as is, without copying.
func mergeStreams(streams []models.PhotonStream) models.PhotonStream {
	switch len(streams) {
	case 0:
		return nil
	case 1:
		return streams[0]
	}
	total := 0
	for _, s := range streams {
		total += len(s)
	}
	out := make(models.PhotonStream, 0, total)
	heads := make([]int, len(streams))
	for len(out) < total {
		best := -1
		for k, s := range streams {
			if heads[k] == len(s) {
				continue
			}
			if best < 0 || s[heads[k]] < streams[best][heads[best]] {
				best = k
			}
		}
		out = append(out, streams[best][heads[best]])
		heads[best]++
	}
	return out
}

// remap re-expresses bursts found on a search stream as index spans of the
// accounting stream acct. Each burst keeps the accounting photons whose
// timestamps lie within [tstart, tend]. Spans are clipped so they do not
// reach back into the previous burst, and bursts left with fewer than two
// photons or zero width are dropped, so the result is a valid set.
func remap(set models.BurstSet, acct models.PhotonStream) models.BurstSet {
	if set.Len() == 0 || len(acct) == 0 {
		return models.EmptyBurstSet
	}
	out := make([]models.Burst, 0, set.Len())
	lo := 0
	for i := 0; i < set.Len(); i++ {
		b := set.At(i)
		rest := acct[lo:]
		istart := lo + sort.Search(len(rest), func(k int) bool { return rest[k] >= b.Start() })
		iend := lo + sort.Search(len(rest), func(k int) bool { return rest[k] > b.End() }) - 1
		if iend-istart+1 < 2 || acct[iend] <= acct[istart] {
			continue
		}
		out = append(out, models.NewBurst(acct, istart, iend))
		lo = iend + 1
	}
	return models.MustBurstSet(out)
}
