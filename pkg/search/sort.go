package search

import "sort"

// sortResults orders by score descending. Ties prefer the better semantic
// rank, treating absence as worse than any real rank, and finally fall back
// to id for a deterministic order.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		si, sj := results[i].SemanticRank, results[j].SemanticRank
		if si == 0 {
			si = int(^uint(0) >> 1)
		}
		if sj == 0 {
			sj = int(^uint(0) >> 1)
		}
		if si != sj {
			return si < sj
		}
		return results[i].Item.ID().String() < results[j].Item.ID().String()
	})
}
