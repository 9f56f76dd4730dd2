package chunker

import "strings"

// DefaultLinesPerChunk is the window size of the line chunker.
const DefaultLinesPerChunk = 100

// LineChunker emits one chunk per fixed window of lines, without overlap.
// Joining its chunks with "\n" reproduces the file apart from dropped blank
// windows and a single trailing newline.
type LineChunker struct {
	linesPerChunk int
}

// NewLineChunker creates a line chunker. Non-positive sizes use the default.
func NewLineChunker(linesPerChunk int) *LineChunker {
	if linesPerChunk <= 0 {
		linesPerChunk = DefaultLinesPerChunk
	}
	return &LineChunker{linesPerChunk: linesPerChunk}
}

func (c *LineChunker) Chunk(text, filePath, repositoryID, repositoryURL string) ([]CodeChunk, error) {
	if isBlank(text) {
		return nil, nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var chunks []CodeChunk
	for start := 0; start < len(lines); start += c.linesPerChunk {
		end := min(start+c.linesPerChunk, len(lines))
		body := strings.Join(lines[start:end], "\n")
		if isBlank(body) {
			continue
		}
		chunk := newChunk(body, filePath, repositoryID, repositoryURL, len(chunks), TypeModule)
		chunk.LineStart = start + 1
		chunk.LineEnd = end
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
