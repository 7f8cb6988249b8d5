// Package chunker splits extracted document text into overlapping chunks.
//
// Text is cut recursively at the coarsest boundary that fits (paragraph, line,
// sentence, word, character) and the resulting pieces are packed into chunks
// of at most ChunkSize runes. Consecutive chunks of a segment share roughly
// ChunkOverlap runes so text near a cut appears in both.
package chunker

import (
	"strings"
	"unicode"

	"document-qa/internal/models"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 300
)

// separator levels, coarsest first. An empty level list means hard cuts.
var defaultLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! "},
	{" ", "\t"},
}

type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Splitter implements the recursive character splitting strategy
type Splitter struct {
	chunkSize int
	overlap   int
	levels    [][][]rune
}

// Option configures a Splitter
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}

	for _, level := range defaultLevels {
		seps := make([][]rune, len(level))
		for i, sep := range level {
			seps[i] = []rune(sep)
		}
		s.levels = append(s.levels, seps)
	}
	return s
}

func (s *Splitter) ChunkSize() int { return s.chunkSize }
func (s *Splitter) Overlap() int   { return s.overlap }

// Split chunks every segment and numbers the chunks in reading order, starting at 1.
// Empty input returns an empty slice. A chunk holds only whitespace when a run of
// blanks is too long to share a chunk with the text around it.
func (s *Splitter) Split(segments []models.Segment) []models.Chunk {
	chunks := []models.Chunk{}
	for _, seg := range segments {
		text := []rune(strings.TrimSpace(seg.Content))
		for _, sp := range s.splitRunes(text) {
			chunks = append(chunks, models.Chunk{
				Content:    string(text[sp.start:sp.end]),
				Source:     seg.Source,
				PageNumber: seg.PageNumber,
				ChunkID:    len(chunks) + 1,
				Offset:     sp.start,
			})
		}
	}
	return chunks
}

// SplitText chunks a single string
func (s *Splitter) SplitText(text string) []string {
	chunks := s.Split([]models.Segment{{Content: text}})
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func (s *Splitter) splitRunes(text []rune) []span {
	if len(text) == 0 {
		return nil
	}
	pieces := s.pieces(text, span{0, len(text)}, s.levels)

	var chunks []span
	cur := span{pieces[0].start, pieces[0].start}
	for _, p := range pieces {
		if cur.len() > 0 && cur.len()+p.len() > s.chunkSize {
			chunks = append(chunks, cur)
			cur = span{s.overlapStart(text, cur, p), cur.end}
		}
		cur.end = p.end
	}
	return append(chunks, cur)
}

// pieces cuts sp into contiguous spans no longer than chunkSize, each separator
// staying attached to the text before it.
func (s *Splitter) pieces(text []rune, sp span, levels [][][]rune) []span {
	if sp.len() <= s.chunkSize {
		return []span{sp}
	}
	if len(levels) == 0 {
		var out []span
		for start := sp.start; start < sp.end; start += s.chunkSize {
			out = append(out, span{start, min(start+s.chunkSize, sp.end)})
		}
		return out
	}

	parts := cutAfter(text, sp, levels[0])
	if len(parts) == 1 {
		return s.pieces(text, sp, levels[1:])
	}
	var out []span
	for _, part := range parts {
		out = append(out, s.pieces(text, part, levels[1:])...)
	}
	return out
}

// overlapStart picks where the chunk following prev begins. It prefers the last
// word start at least overlap runes before prev.end. When that leaves no room
// for next, the overlap shrinks to the earliest word start that fits, and to
// nothing when no word starts there.
func (s *Splitter) overlapStart(text []rune, prev, next span) int {
	room := s.chunkSize - next.len()
	want := min(s.overlap, prev.len()-1)
	if want <= 0 || room <= 0 {
		return prev.end
	}

	lo := max(prev.end-room, prev.start+1)
	for i := prev.end - want; i >= lo; i-- {
		if isWordStart(text, i) {
			return i
		}
	}
	for i := max(lo, prev.end-want+1); i < prev.end; i++ {
		if isWordStart(text, i) {
			return i
		}
	}
	return prev.end
}

func isWordStart(text []rune, i int) bool {
	return !unicode.IsSpace(text[i]) && unicode.IsSpace(text[i-1])
}

func cutAfter(text []rune, sp span, seps [][]rune) []span {
	var out []span
	start := sp.start
	for i := sp.start; i < sp.end; {
		n := matchAt(text, i, sp.end, seps)
		if n == 0 {
			i++
			continue
		}
		i += n
		out = append(out, span{start, i})
		start = i
	}
	if start < sp.end {
		out = append(out, span{start, sp.end})
	}
	return out
}

func matchAt(text []rune, i, end int, seps [][]rune) int {
	for _, sep := range seps {
		if i+len(sep) > end {
			continue
		}
		match := true
		for j, r := range sep {
			if text[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return len(sep)
		}
	}
	return 0
}

// Reassemble joins chunks back into the text of their segments, dropping the
// overlapping prefix of each chunk. A chunk at offset 0 starts a new segment;
// segments are separated by a blank line.
func Reassemble(chunks []models.Chunk) string {
	var content strings.Builder
	end := 0
	for i, chunk := range chunks {
		runes := []rune(chunk.Content)
		if i == 0 || chunk.Offset == 0 {
			if i > 0 {
				content.WriteString("\n\n")
			}
			content.WriteString(chunk.Content)
			end = len(runes)
			continue
		}
		if skip := end - chunk.Offset; skip < len(runes) {
			content.WriteString(string(runes[max(skip, 0):]))
		}
		end = max(end, chunk.Offset+len(runes))
	}
	return content.String()
}
