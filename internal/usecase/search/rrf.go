package search

import (
	"sort"

	"github.com/kailas-cloud/fusegate/internal/domain/search/result"
)

// DefaultRRFK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const DefaultRRFK = 60

// fuseRRF merges one ranked list per source via Reciprocal Rank Fusion.
// score(d) = sum of 1/(rrfK + rank_i(d)) for each list where d appears, rank
// 1-based. Ties break on first-seen order across the input lists, which keeps
// the output deterministic and, with a single source, preserves that source's
// relative order.
func fuseRRF(lists [][]result.Result, rrfK, topK int) []result.Result {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}

	type scored struct {
		res       result.Result
		score     float64
		firstSeen int
	}

	merged := make(map[string]*scored)
	seen := 0

	for _, list := range lists {
		for rank, r := range list {
			s := 1.0 / float64(rrfK+rank+1)
			if existing, ok := merged[r.ID()]; ok {
				existing.score += s
			} else {
				merged[r.ID()] = &scored{res: r, score: s, firstSeen: seen}
				seen++
			}
		}
	}

	entries := make([]*scored, 0, len(merged))
	for _, sc := range merged {
		entries = append(entries, sc)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].firstSeen < entries[j].firstSeen
	})

	if len(entries) > topK {
		entries = entries[:topK]
	}

	// Rebuild results with the fused score; payloads pass through untouched.
	results := make([]result.Result, len(entries))
	for i, sc := range entries {
		results[i] = result.New(sc.res.ID(), sc.score, sc.res.Payload())
	}
	return results
}
