package ingest

import "strings"

const (
	// DefaultChunkSize is the chunk window in runes.
	DefaultChunkSize = 5000
	// DefaultChunkOverlap is how many trailing runes each chunk shares
	// with the next one.
	DefaultChunkOverlap = 1000
)

// Splitter cuts document text into overlapping chunks sized for embedding.
// Chunks prefer to break at a paragraph boundary when one falls in the
// second half of the window, so fragments tend to start and end at natural
// seams instead of mid-sentence.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter returns a splitter with the given window and overlap.
// Non-positive or inconsistent values fall back to the defaults.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split returns the chunks of text in order. Whitespace-only chunks are
// dropped; a text shorter than one window comes back as a single chunk.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + s.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint finds where to cut the window [start,end). A paragraph break
// in the second half of the window wins; failing that, a line break, then
// a space, then the hard window edge.
func (s *Splitter) breakPoint(runes []rune, start, end int) int {
	half := start + (end-start)/2

	for _, sep := range []string{"\n\n", "\n", " "} {
		if at := lastIndexRunes(runes, sep, half, end); at >= 0 {
			return at + len([]rune(sep))
		}
	}
	return end
}

// lastIndexRunes returns the last occurrence of sep fully inside
// runes[from:to), or -1.
func lastIndexRunes(runes []rune, sep string, from, to int) int {
	sepRunes := []rune(sep)
	for i := to - len(sepRunes); i >= from; i-- {
		match := true
		for j, r := range sepRunes {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
