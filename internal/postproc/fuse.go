package postproc

import "github.com/fretbursts/burst-engine/internal/models"

// Fuse merges consecutive bursts with at most gap empty ticks between the
// end of one and the start of the next, that is start - end - 1 <= gap. A
// merged burst runs from the first photon of the earlier burst to the last
// photon of the later one, so photons between them become part of it;
// chains of close bursts collapse into a single burst. At gap 0 bursts
// must also touch in index space, so no photon outside both is absorbed.
func Fuse(set models.BurstSet, gap int64) models.BurstSet {
	if set.Len() < 2 {
		return set
	}
	out := make([]models.Burst, 0, set.Len())
	cur := set.At(0)
	for i := 1; i < set.Len(); i++ {
		next := set.At(i)
		if mergeable(cur, next, gap) {
			cur = models.Span(cur.Start(), next.End(), cur.IndexStart(), next.IndexEnd())
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return models.MustBurstSet(out)
}

func mergeable(cur, next models.Burst, gap int64) bool {
	if next.Start()-cur.End()-1 > gap {
		return false
	}
	return gap > 0 || next.IndexStart() == cur.IndexEnd()+1
}

// FuseAll applies Fuse to every channel.
func FuseAll(mb models.MultiBurstSet, gap int64) models.MultiBurstSet {
	out := make(models.MultiBurstSet, len(mb))
	for ch, set := range mb {
		out[ch] = Fuse(set, gap)
	}
	return out
}
