// Package vectorstore stores chunk embeddings in a named collection and
// answers filtered nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ziadkadry99/clove/internal/chunker"
	"github.com/ziadkadry99/clove/internal/ragerr"
)

const (
	// DefaultCollection is the collection used when none is given.
	DefaultCollection = "clove"

	DefaultLimit = 8
	MinLimit     = 3
	MaxLimit     = 15

	// DistanceCosine is the only distance metric collections are created with.
	DistanceCosine = "Cosine"
)

// Payload keys.
const (
	KeyRepositoryID  = "repositoryId"
	KeyRepositoryURL = "repositoryUrl"
	KeyFilePath      = "filePath"
	KeyFileExtension = "fileExtension"
	KeyLanguage      = "language"
	KeyChunkIndex    = "chunkIndex"
	KeyLineStart     = "lineStart"
	KeyLineEnd       = "lineEnd"
	KeyType          = "type"
	KeyText          = "text"
)

// IndexedFields are the payload fields collections index for filtering.
var IndexedFields = []string{KeyRepositoryID, KeyFilePath, KeyType}

var intKeys = map[string]bool{KeyChunkIndex: true, KeyLineStart: true, KeyLineEnd: true}

// Store is a vector database adapter. Implementations own the collection
// schema; callers track which point ids belong to which repository.
type Store interface {
	// EnsureCollection creates the named collection when it does not exist.
	// It is a no-op for an existing collection.
	EnsureCollection(ctx context.Context, name string) error

	// Upsert writes one point per chunk and returns the ids written. Points
	// are visible to Search once Upsert returns.
	Upsert(ctx context.Context, chunks []chunker.CodeChunk, vectors [][]float32, collection string) ([]string, error)

	// Search returns the nearest points in descending score order. Only
	// invalid input is an error; backend failures yield no results.
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchResult, error)

	// Delete removes the given point ids.
	Delete(ctx context.Context, ids []string, collection string) error

	Close() error
}

// Point is a vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Filter is a conjunction of exact-match payload constraints. Empty fields
// are not constrained.
type Filter struct {
	RepositoryID string
	FilePath     string
	Type         string
}

// Conditions returns the non-empty constraints keyed by payload field.
func (f Filter) Conditions() map[string]string {
	out := map[string]string{}
	if f.RepositoryID != "" {
		out[KeyRepositoryID] = f.RepositoryID
	}
	if f.FilePath != "" {
		out[KeyFilePath] = f.FilePath
	}
	if f.Type != "" {
		out[KeyType] = f.Type
	}
	return out
}

// SearchOptions controls Search.
type SearchOptions struct {
	Filter Filter
	// Limit is clamped to [MinLimit, MaxLimit]; zero means DefaultLimit.
	Limit int
	// ScoreThreshold drops results scoring below it when set.
	ScoreThreshold *float64
	Collection     string
}

// SearchResult is one scored point.
type SearchResult struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// FilePath returns the result's file path metadata.
func (r SearchResult) FilePath() string { return MetaString(r.Metadata, KeyFilePath) }

// ClampLimit applies the default and the safe range to a search limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return max(MinLimit, min(limit, MaxLimit))
}

func collectionOrDefault(name string) string {
	if name == "" {
		return DefaultCollection
	}
	return name
}

// Threshold is a convenience for building SearchOptions.ScoreThreshold.
func Threshold(v float64) *float64 { return &v }

// BuildPoints pairs chunks with vectors. It rejects mismatched lengths and
// malformed vectors before anything is written.
func BuildPoints(chunks []chunker.CodeChunk, vectors [][]float32, dimensions int) ([]Point, error) {
	if len(chunks) != len(vectors) {
		return nil, ragerr.Validationf(ragerr.StageStore, "%d chunks but %d vectors", len(chunks), len(vectors))
	}
	points := make([]Point, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return nil, ragerr.Validationf(ragerr.StageStore, "chunk %d of %s has no id", c.ChunkIndex, c.FilePath)
		}
		v := vectors[i]
		if len(v) == 0 {
			return nil, ragerr.Validationf(ragerr.StageStore, "empty vector for chunk %s", c.ID)
		}
		if dimensions > 0 && len(v) != dimensions {
			return nil, ragerr.Validationf(ragerr.StageStore, "vector for chunk %s has %d dimensions, collection expects %d", c.ID, len(v), dimensions)
		}
		points[i] = Point{ID: c.ID, Vector: v, Payload: ChunkPayload(c)}
	}
	return points, nil
}

// ChunkPayload flattens a chunk into a point payload, text included.
func ChunkPayload(c chunker.CodeChunk) map[string]any {
	return map[string]any{
		KeyRepositoryID:  c.RepositoryID,
		KeyRepositoryURL: c.RepositoryURL,
		KeyFilePath:      c.FilePath,
		KeyFileExtension: c.FileExtension,
		KeyLanguage:      c.Language,
		KeyChunkIndex:    c.ChunkIndex,
		KeyLineStart:     c.LineStart,
		KeyLineEnd:       c.LineEnd,
		KeyType:          string(c.Type),
		KeyText:          c.Text,
	}
}

// splitPayload separates the text from the rest of a payload.
func splitPayload(payload map[string]any) (string, map[string]any) {
	meta := make(map[string]any, len(payload))
	var text string
	for k, v := range payload {
		if k == KeyText {
			text, _ = v.(string)
			continue
		}
		if intKeys[k] {
			v = MetaInt(payload, k)
		}
		meta[k] = v
	}
	return text, meta
}

// MetaString reads a string metadata value.
func MetaString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// MetaInt reads an integer metadata value stored as a number or a string.
func MetaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func applyThreshold(results []SearchResult, threshold *float64) []SearchResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if threshold == nil {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.Score >= *threshold {
			kept = append(kept, r)
		}
	}
	return kept
}
