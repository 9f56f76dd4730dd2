package vectorstore

import (
	"fmt"
	"strings"
)

// Location renders "path:start-end" for a result, or just the path when the
// line range is unknown.
func (r SearchResult) Location() string {
	location := r.FilePath()
	start := MetaInt(r.Metadata, KeyLineStart)
	end := MetaInt(r.Metadata, KeyLineEnd)
	if location == "" || start <= 0 {
		return location
	}
	location += fmt.Sprintf(":%d", start)
	if end > start {
		location += fmt.Sprintf("-%d", end)
	}
	return location
}

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Result %d (score: %.4f) ---\n", i+1, r.Score))

		if loc := r.Location(); loc != "" {
			sb.WriteString(fmt.Sprintf("File: %s\n", loc))
		}
		if typ := MetaString(r.Metadata, KeyType); typ != "" {
			sb.WriteString(fmt.Sprintf("Type: %s\n", typ))
		}
		if lang := MetaString(r.Metadata, KeyLanguage); lang != "" {
			sb.WriteString(fmt.Sprintf("Language: %s\n", lang))
		}

		sb.WriteString("\n")
		sb.WriteString(r.Text)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
