// Package chunker splits file text into bounded, overlapping chunks tagged
// with their position in the repository.
package chunker

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ziadkadry99/clove/internal/walker"
)

// ChunkType tags what a chunk represents.
type ChunkType string

const (
	TypeCode   ChunkType = "code"
	TypeModule ChunkType = "module"
)

// Strategy names a chunking strategy.
type Strategy string

const (
	StrategyRecursive Strategy = "recursive"
	StrategyLines     Strategy = "lines"
)

// CodeChunk is a contiguous, bounded slice of one file's text.
type CodeChunk struct {
	ID            string
	Text          string
	RepositoryID  string
	RepositoryURL string
	FilePath      string
	FileExtension string
	Language      string
	ChunkIndex    int
	// LineStart and LineEnd are 1-based and inclusive.
	LineStart int
	LineEnd   int
	Type      ChunkType
}

// Chunker splits one file's text into chunks.
type Chunker interface {
	Chunk(text, filePath, repositoryID, repositoryURL string) ([]CodeChunk, error)
}

// Options configures New.
type Options struct {
	Strategy      Strategy
	ChunkSize     int // estimated tokens, recursive strategy
	ChunkOverlap  int // estimated tokens, recursive strategy
	LinesPerChunk int // lines strategy
}

// New returns the chunker for opts.Strategy. The recursive strategy is the
// default.
func New(opts Options) Chunker {
	if opts.Strategy == StrategyLines {
		return NewLineChunker(opts.LinesPerChunk)
	}
	return NewRecursiveChunker(opts.ChunkSize, opts.ChunkOverlap)
}

// EmbeddingText is the text sent to the embedding provider for c. The file
// path prefix lets queries that name a file match its chunks.
func EmbeddingText(c CodeChunk, includePath bool) string {
	if !includePath {
		return c.Text
	}
	return "File: " + c.FilePath + "\n" + c.Text
}

func newChunk(text, filePath, repositoryID, repositoryURL string, index int, typ ChunkType) CodeChunk {
	return CodeChunk{
		ID:            uuid.NewString(),
		Text:          text,
		RepositoryID:  repositoryID,
		RepositoryURL: repositoryURL,
		FilePath:      filepath.ToSlash(filePath),
		FileExtension: strings.ToLower(filepath.Ext(filePath)),
		Language:      walker.DetectLanguage(filePath),
		ChunkIndex:    index,
		Type:          typ,
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
