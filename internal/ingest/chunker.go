package ingest

import "strings"

// Chunker splits a document's text into fragments small enough to embed.
type Chunker func(text string) []string

// DefaultChunkSize and DefaultChunkOverlap match the window used when the
// documentation corpus was first indexed.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// WindowChunker returns a Chunker that produces fragments of at most size
// characters, with overlap characters shared between consecutive fragments.
// Fragment boundaries prefer whitespace so words are not cut mid-way.
func WindowChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}

	return func(text string) []string {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}

		runes := []rune(text)
		if len(runes) <= size {
			return []string{text}
		}

		var chunks []string
		start := 0
		for start < len(runes) {
			end := start + size
			if end >= len(runes) {
				end = len(runes)
			} else {
				end = breakBefore(runes, start, end)
			}

			chunk := strings.TrimSpace(string(runes[start:end]))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			if end == len(runes) {
				break
			}

			next := end - overlap
			if next <= start {
				next = end
			}
			start = next
		}
		return chunks
	}
}

// breakBefore moves end back to the nearest whitespace boundary, searching at
// most a quarter of the window so a long unbroken run still gets split.
func breakBefore(runes []rune, start, end int) int {
	limit := end - (end-start)/4
	for i := end; i > limit; i-- {
		if isSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
