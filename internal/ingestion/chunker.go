// Package ingestion implements the write path of the retrieval core:
// chunking source documents, gating auto-learned text on quality, embedding
// under a rate limit, near-duplicate suppression, and the periodic decay
// sweep over learned knowledge.
package ingestion

import (
	"strings"
	"unicode"
)

// Chunker splits document text into overlapping windows. Sizes are in runes,
// not bytes: Turkish text is multi-byte in UTF-8 and byte-based windows
// would split characters.
type Chunker struct {
	// size is the target chunk length in runes.
	size int
	// overlap is how many runes consecutive chunks share.
	overlap int
}

// NewChunker constructs a Chunker with the given window size and overlap.
func NewChunker(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the overlapping chunks of text. Short inputs yield a single
// chunk; empty or whitespace-only input yields none. Each window prefers to
// break at a section boundary (blank line, then newline, then space) found in
// its final stretch, so chunks end at natural seams instead of mid-sentence.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= c.size {
		return []string{trimmed}
	}

	// Boundary search is confined to the last stretch of the window so a
	// break never shrinks a chunk below ~85% of the target size.
	searchZone := c.size * 15 / 100

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start+c.size-searchZone, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// breakPoint finds the best cut position in runes[lo:hi]: the last blank
// line, else the last newline, else the last space. Falls back to hi.
func breakPoint(runes []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	lastNewline, lastSpace := -1, -1
	for i := hi - 1; i >= lo; i-- {
		switch {
		case runes[i] == '\n':
			if lastNewline == -1 {
				lastNewline = i
			}
			// A blank line (two newlines with only spaces between) is the
			// strongest boundary.
			if j := prevNewline(runes, i, lo); j != -1 {
				return i + 1
			}
		case unicode.IsSpace(runes[i]) && lastSpace == -1:
			lastSpace = i
		}
	}
	if lastNewline != -1 {
		return lastNewline + 1
	}
	if lastSpace != -1 {
		return lastSpace + 1
	}
	return hi
}

// prevNewline returns the index of a newline directly above position i with
// only horizontal whitespace in between, or -1.
func prevNewline(runes []rune, i, lo int) int {
	for j := i - 1; j >= lo; j-- {
		if runes[j] == '\n' {
			return j
		}
		if !unicode.IsSpace(runes[j]) {
			return -1
		}
	}
	return -1
}
