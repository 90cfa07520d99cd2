package searcher

import (
	"sort"

	"github.com/dshills/coderetrieve/pkg/types"
)

// Scored is a candidate with its final score
type Scored struct {
	Record types.ChunkRecord
	Score  float64
}

// Rank orders scored candidates by descending score, keeping the input order
// among ties, emits each identity once, drops scores under minScore and stops
// at topK. Ranks are 1-based.
func Rank(scored []Scored, topK int, minScore *float64) []types.RankedResult {
	if topK <= 0 {
		return []types.RankedResult{}
	}
	sorted := make([]Scored, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	results := make([]types.RankedResult, 0, min(topK, len(sorted)))
	seen := make(map[types.IdentityKey]struct{}, len(sorted))
	for _, sc := range sorted {
		if len(results) >= topK {
			break
		}
		key := sc.Record.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if minScore != nil && sc.Score < *minScore {
			continue
		}
		results = append(results, types.RankedResult{
			Rank:        len(results) + 1,
			Score:       sc.Score,
			ChunkRecord: sc.Record,
		})
	}
	return results
}
