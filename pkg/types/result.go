package types

// RankedResult represents a single search result with its fused relevance score
type RankedResult struct {
	Rank  int     `json:"rank"`  // Position in result set (1-based)
	Score float64 `json:"score"` // Fused score clamped to [0, 1]

	ChunkRecord
}

// Validate checks if the ranked result is valid
func (r *RankedResult) Validate() error {
	if r.Rank < 1 {
		return ErrInvalidRank
	}

	if r.Score < 0 || r.Score > 1 {
		return ErrInvalidRelevanceScore
	}

	if r.Code == "" {
		return ErrEmptyContent
	}

	return nil
}
