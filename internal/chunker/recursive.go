package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/ziadkadry99/clove/internal/tokens"
	"github.com/ziadkadry99/clove/internal/walker"
)

const (
	// DefaultChunkSize is the target chunk size in estimated tokens.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the overlap between neighbouring chunks in
	// estimated tokens.
	DefaultChunkOverlap = 100
)

// markdownSeparators split markdown at headings and code fences before
// falling back to paragraphs, lines and words.
var markdownSeparators = []string{
	"\n# ", "\n## ", "\n### ", "\n#### ", "\n```", "\n\n", "\n", " ", "",
}

// RecursiveChunker splits text by estimated token length, preferring
// paragraph and line boundaries. Markdown files are split at headings first.
// Every chunk is a verbatim slice of the source.
type RecursiveChunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewRecursiveChunker creates a recursive chunker. Non-positive sizes use the
// defaults; an overlap that is not smaller than the chunk size is reduced to
// a tenth of it.
func NewRecursiveChunker(chunkSize, chunkOverlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &RecursiveChunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

func (c *RecursiveChunker) splitter(filePath string) textsplitter.TextSplitter {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
		textsplitter.WithLenFunc(tokens.Estimate),
	}
	if walker.IsMarkdown(filePath) {
		opts = append(opts,
			textsplitter.WithSeparators(markdownSeparators),
			textsplitter.WithKeepSeparator(true),
		)
	}
	return textsplitter.NewRecursiveCharacter(opts...)
}

func (c *RecursiveChunker) Chunk(text, filePath, repositoryID, repositoryURL string) ([]CodeChunk, error) {
	if isBlank(text) {
		return nil, nil
	}

	pieces, err := c.splitter(filePath).SplitText(text)
	if err != nil {
		return nil, err
	}

	var chunks []CodeChunk
	cursor := 0
	for _, piece := range pieces {
		if isBlank(piece) {
			continue
		}
		start, end := locate(text, piece, cursor)
		chunk := newChunk(piece, filePath, repositoryID, repositoryURL, len(chunks), TypeCode)
		chunk.LineStart, chunk.LineEnd = lineRange(text, start, end)
		chunks = append(chunks, chunk)
		// The next piece starts after this one and overlaps it by at most
		// chunkOverlap tokens.
		cursor = max(cursor, start+1, end-c.maxOverlapBytes())
	}
	return chunks, nil
}

// maxOverlapBytes bounds how many bytes chunkOverlap estimated tokens can
// span: four runes per token, each at most utf8.UTFMax bytes.
func (c *RecursiveChunker) maxOverlapBytes() int {
	return c.chunkOverlap * tokens.AvgCharsPerToken * utf8.UTFMax
}

// locate finds the byte range of piece in source at or after from. Pieces
// are trimmed slices of the source; when the exact text is still absent the
// piece is anchored on its first non-blank line instead.
func locate(source, piece string, from int) (int, int) {
	from = min(from, len(source))
	if i := strings.Index(source[from:], piece); i >= 0 {
		return from + i, from + i + len(piece)
	}
	for _, line := range strings.Split(piece, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.Index(source[from:], line); i >= 0 {
			start := from + i
			return start, min(start+len(piece), len(source))
		}
		break
	}
	return from, min(from+len(piece), len(source))
}

// lineRange converts a byte range of source into 1-based inclusive lines.
func lineRange(source string, start, end int) (int, int) {
	first := 1 + strings.Count(source[:start], "\n")
	span := strings.TrimRight(source[start:end], "\n")
	return first, first + strings.Count(span, "\n")
}
