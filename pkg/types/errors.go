package types

import "errors"

// Domain errors for type validation
var (
	// Chunk errors
	ErrEmptyCode = errors.New("chunk code cannot be empty")

	// Search result errors
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrEmptyContent          = errors.New("content cannot be empty")
)
