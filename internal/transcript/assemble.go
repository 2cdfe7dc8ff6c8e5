// Package transcript merges recognizer segments and joins them into aggregate text.
package transcript

import "strings"

// Assemble joins finalized segments in arrival order with single spaces.
func Assemble(finalSegments []string) string {
	if len(finalSegments) == 0 {
		return ""
	}
	return Clean(strings.Join(finalSegments, " "))
}

// JoinChunks joins per-chunk texts in chunk order, skipping chunks that produced nothing.
func JoinChunks(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, text := range texts {
		if text = Clean(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Clean collapses whitespace runs to single spaces.
func Clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
