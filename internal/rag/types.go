package rag

import (
	"time"

	"github.com/ziadkadry99/clove/internal/contextbuilder"
)

// Source is a retrieved chunk in the shape the context builder consumes.
type Source = contextbuilder.Source

// State is a repository's position in the index-and-query lifecycle.
type State string

const (
	StateUnindexed State = "unindexed"
	StateIndexing  State = "indexing"
	StateIndexed   State = "indexed"
	StateFailed    State = "failed"
	StateQuerying  State = "querying"
)

// Phase names a step of an index run, as reported to a ProgressFunc.
type Phase string

const (
	PhaseWalk  Phase = "walk"
	PhaseChunk Phase = "chunk"
	PhaseEmbed Phase = "embed"
	PhaseStore Phase = "store"
)

// ProgressFunc is called as an index run moves between phases. done and
// total count items of the phase (files, chunks or points).
type ProgressFunc func(phase Phase, done, total int)

// IndexRequest describes one full index run.
type IndexRequest struct {
	RootPath      string
	RepositoryID  string
	RepositoryURL string
}

// IndexResult summarizes a successful index run.
type IndexResult struct {
	// PointIDs are the vector store ids written; callers keep them to
	// delete the repository later.
	PointIDs []string
	Files    int
	Chunks   int
	Duration time.Duration
}

// QueryRequest describes a retrieval scoped to one repository.
type QueryRequest struct {
	Query        string
	RepositoryID string
	// Limit is clamped to [3, 15]; zero means 8.
	Limit          int
	ScoreThreshold *float64
	// MaxTokens, when positive, keeps the best sources whose formatted
	// text fits in that many estimated tokens.
	MaxTokens int
	FilePath  string
	Type      string
}
