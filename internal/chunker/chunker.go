// Package chunker splits document text into overlapping segments along
// semantic boundaries: paragraph breaks first, then line breaks, then
// word boundaries, then hard character cuts.
package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of characters shared between
// adjacent chunks.
const DefaultOverlap = 200

// separators in priority order. The empty string means a hard cut.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter produces overlapping chunks of bounded size.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) { s.chunkSize = size }
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) { s.overlap = overlap }
}

// New creates a splitter. Overlap must be non-negative and strictly
// less than the chunk size; violations are configuration errors raised
// before any splitting occurs.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, s.chunkSize)
	}
	if s.overlap < 0 || s.overlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, chunk size %d)", domain.ErrConfiguration, s.overlap, s.chunkSize)
	}
	return s, nil
}

// Split splits text into chunk content strings. Each chunk is an exact
// slice of the source, and each chunk after the first begins overlap
// characters before the end of its predecessor's source span, so
// adjacent chunks share exactly that much original text (less only at
// the document boundary).
func (s *Splitter) Split(text string) ([]string, error) {
	if text == "" {
		return nil, domain.ErrEmptyDocument
	}
	if len(text) <= s.chunkSize {
		return []string{text}, nil
	}

	boundaries := s.pieceBoundaries(text, 0, separators)
	sort.Ints(boundaries)

	var chunks []string
	start := 0
	for start < len(text) {
		end := s.furthestBoundary(boundaries, start, len(text))
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
		next := end - s.overlap
		// Overlap counts bytes; never start a chunk inside a rune.
		for next > start && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			// A short boundary-forced chunk: give up the overlap
			// rather than stall.
			next = end
		}
		start = next
	}
	return chunks, nil
}

// pieceBoundaries recursively splits text[from:] (indices are absolute)
// with the given separator priority and returns the end offset of every
// base piece. Every piece is at most chunkSize long: pieces still too
// large after one separator are re-split with the next.
func (s *Splitter) pieceBoundaries(text string, from int, seps []string) []int {
	if len(text) <= s.chunkSize {
		return []int{from + len(text)}
	}

	sep := seps[0]
	if sep == "" {
		// No separator left: the piece may be cut at any rune end.
		out := make([]int, 0, len(text))
		for i, r := range text {
			out = append(out, from+i+utf8.RuneLen(r))
		}
		return out
	}

	var out []int
	rest := text
	off := from
	for {
		i := strings.Index(rest, sep)
		if i < 0 {
			break
		}
		// The separator stays attached to the preceding piece so the
		// pieces tile the source exactly.
		piece := rest[:i+len(sep)]
		if len(piece) > s.chunkSize {
			out = append(out, s.pieceBoundaries(piece, off, seps[1:])...)
		} else {
			out = append(out, off+len(piece))
		}
		off += len(piece)
		rest = rest[i+len(sep):]
	}
	if len(rest) > 0 {
		if len(rest) > s.chunkSize {
			out = append(out, s.pieceBoundaries(rest, off, seps[1:])...)
		} else {
			out = append(out, off+len(rest))
		}
	}
	return out
}

// furthestBoundary returns the largest piece boundary within chunkSize
// of start, clamped to max. The piece containing start ends no further
// than chunkSize past it, so a boundary is normally in range.
func (s *Splitter) furthestBoundary(boundaries []int, start, max int) int {
	limit := start + s.chunkSize
	i := sort.SearchInts(boundaries, start+1)
	end := 0
	for ; i < len(boundaries) && boundaries[i] <= limit; i++ {
		end = boundaries[i]
	}
	if end == 0 {
		// Only reachable when a single rune is wider than the chunk
		// size; hard cut so the loop still makes progress.
		end = limit
		if end > max {
			end = max
		}
	}
	return end
}
