package similarity

import (
	"cmp"
	"math"
	"slices"
)

// GetSmartCandidates picks up to maxCandidates documents worth scoring
// against id. The bulk of the budget comes from the word index; the rest are
// the most recently modified documents. When the word index knows nothing about id the
// bulk falls back to bloom intersection counts plus a few random picks.
func (ix *Index) GetSmartCandidates(id string, maxCandidates int) []string {
	st := ix.state()
	if _, ok := st.get(id); !ok {
		return []string{}
	}
	return ix.smartCandidates(st, id, maxCandidates)
}

func (ix *Index) smartCandidates(st *state, id string, budget int) []string {
	if budget <= 0 {
		return []string{}
	}
	out := make([]string, 0, budget)
	seen := map[string]struct{}{id: {}}
	add := func(cid string) bool {
		if len(out) >= budget {
			return false
		}
		if _, dup := seen[cid]; dup {
			return true
		}
		seen[cid] = struct{}{}
		out = append(out, cid)
		return true
	}

	primary := int(math.Round(float64(budget) * ix.cand.WordIndexShare))
	warm := ix.cand.WordIndexEnabled && st.words.Has(id)
	if warm {
		for _, c := range st.words.GetFastCandidates(id, primary, ix.cand.SampleWords) {
			add(c.ID)
		}
	} else {
		ix.fallbackCandidates(st, id, primary, add)
	}

	entries := st.entries()
	slices.SortStableFunc(entries, func(a, b *entry) int {
		return b.modTime.Compare(a.modTime)
	})
	for _, e := range entries {
		if !add(e.id) {
			break
		}
	}
	return out
}

// fallbackCandidates spends budget on the documents sharing the most set bits
// with id, reserving ExplorationShare of it for uniform random picks.
func (ix *Index) fallbackCandidates(st *state, id string, budget int, add func(string) bool) {
	if budget <= 0 {
		return
	}
	q, ok := st.get(id)
	if !ok {
		return
	}
	l := st.currentLayout()
	n := l.ngrams[0]
	qf := q.filters[n]
	if qf == nil {
		return
	}

	type overlap struct {
		id    string
		count uint
	}
	entries := st.entries()
	scored := make([]overlap, 0, len(entries))
	for _, e := range entries {
		if e.id == id || e.filters[n] == nil {
			continue
		}
		if c := qf.IntersectionCount(e.filters[n].Filter); c > 0 {
			scored = append(scored, overlap{id: e.id, count: c})
		}
	}
	slices.SortStableFunc(scored, func(a, b overlap) int { return cmp.Compare(b.count, a.count) })

	greedy := int(math.Round(float64(budget) * (1 - ix.cand.ExplorationShare)))
	taken := 0
	for _, s := range scored {
		if taken >= greedy {
			break
		}
		add(s.id)
		taken++
	}

	explore := budget - taken
	pool := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			pool = append(pool, e.id)
		}
	}
	for i := 0; i < explore && i < len(pool); i++ {
		j := i + ix.intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		add(pool[i])
	}
}
