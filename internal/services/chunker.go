package services

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Piece is one text window produced by the chunker, ordered by Index. Start
// is the rune offset of the window in the input; SectionTitle carries the
// nearest markdown heading above the window, when the input has any.
type Piece struct {
	Index        int
	Start        int
	Text         string
	SectionTitle string
}

// Chunker splits normalized text into overlapping windows. Splitting is a
// pure function of (text, size, overlap): identical inputs always produce
// identical boundaries.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk windows the input so that consecutive pieces overlap by roughly the
// configured amount and no text falls between two pieces. Boundaries prefer
// paragraph breaks, then sentence ends, then word breaks, before a hard cut
// at the size limit. Empty or whitespace-only input yields no pieces.
func (c *Chunker) Chunk(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	headings := scanHeadings(runes)
	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.breakPoint(runes, start, end)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, Piece{
				Index:        len(pieces),
				Start:        start,
				Text:         piece,
				SectionTitle: sectionFor(headings, start),
			})
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
	return pieces
}

// breakPoint finds the best cut position in (start, limit]. Cuts are not
// allowed in the first half of the window so boundary preference can never
// shrink a chunk below size/2.
func (c *Chunker) breakPoint(runes []rune, start, limit int) int {
	floor := start + c.size/2

	if p := lastParagraphBreak(runes, floor, limit); p > 0 {
		return p
	}
	if p := lastSentenceEnd(runes, floor, limit); p > 0 {
		return p
	}
	if p := lastSpace(runes, floor, limit); p > 0 {
		return p
	}
	return limit
}

func lastParagraphBreak(runes []rune, floor, limit int) int {
	for i := limit - 1; i > floor; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return 0
}

func lastSentenceEnd(runes []rune, floor, limit int) int {
	for i := limit - 1; i > floor; i-- {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		// Only treat it as a boundary when followed by whitespace or EOF,
		// so "3.14" or "e.g" inside a window does not split it.
		if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
			return i + 1
		}
	}
	return 0
}

func lastSpace(runes []rune, floor, limit int) int {
	for i := limit - 1; i > floor; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

type heading struct {
	offset int
	title  string
}

// scanHeadings records every markdown-style heading line (1-6 '#' then a
// space) with the rune offset where its line starts.
func scanHeadings(runes []rune) []heading {
	var out []heading
	lineStart := 0
	for i := 0; i <= len(runes); i++ {
		if i < len(runes) && runes[i] != '\n' {
			continue
		}
		if title, ok := headingTitle(runes[lineStart:i]); ok {
			out = append(out, heading{offset: lineStart, title: title})
		}
		lineStart = i + 1
	}
	return out
}

func headingTitle(line []rune) (string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return "", false
	}
	title := strings.TrimSpace(string(line[level+1:]))
	return title, title != ""
}

// sectionFor returns the title of the last heading at or above the given
// window start, or "" when no heading precedes it.
func sectionFor(headings []heading, start int) string {
	title := ""
	for _, h := range headings {
		if h.offset > start {
			break
		}
		title = h.title
	}
	return title
}
