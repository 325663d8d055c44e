package chunker

import (
	"strings"
	"unicode/utf8"

	"pdfrag/internal/domain"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 100

	// MaxChunkChars is the hard ceiling every emitted chunk respects.
	MaxChunkChars = 1000
	// safetyWindow is the slice width used when a chunk breaks the ceiling.
	safetyWindow = 900
)

// ParagraphChunker splits text on blank lines, falls back to sentences and
// then fixed-width slices for oversized paragraphs, and carries a short word
// overlap across paragraph boundaries.
type ParagraphChunker struct {
	chunkSize int
	overlap   int
}

var _ domain.Chunker = (*ParagraphChunker)(nil)

func New(chunkSize, overlap int) *ParagraphChunker {
	if chunkSize < 2 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &ParagraphChunker{chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits text with the default chunk size and overlap.
func Chunk(text string) []string {
	return New(DefaultChunkSize, DefaultOverlap).Chunk(text)
}

func (c *ParagraphChunker) Chunk(text string) []string {
	var chunks []string
	current := ""

	emit := func(s string) {
		if strings.TrimSpace(s) != "" {
			chunks = append(chunks, s)
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if runeLen(paragraph) > c.chunkSize {
			for _, sentence := range splitSentences(paragraph) {
				switch {
				case runeLen(sentence) > c.chunkSize:
					for _, piece := range fixedSlices(sentence, c.chunkSize/2) {
						emit(piece)
					}
				case runeLen(current)+runeLen(sentence)+2 > c.chunkSize:
					emit(current)
					current = sentence
				case current != "":
					current += " " + sentence
				default:
					current = sentence
				}
			}
			continue
		}

		if current != "" && runeLen(current)+runeLen(paragraph)+2 > c.chunkSize {
			emit(current)
			if tail := c.overlapTail(current); tail != "" {
				current = tail + " " + paragraph
			} else {
				current = paragraph
			}
			continue
		}

		if current != "" {
			current += "\n\n" + paragraph
		} else {
			current = paragraph
		}
	}
	emit(current)

	// Final pass: nothing leaves the chunker above the hard ceiling.
	out := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if runeLen(ch) <= MaxChunkChars {
			out = append(out, ch)
			continue
		}
		for _, piece := range fixedSlices(ch, safetyWindow) {
			if strings.TrimSpace(piece) != "" {
				out = append(out, piece)
			}
		}
	}
	return out
}

// overlapTail returns roughly overlap/10 trailing words of s (about ten
// characters per word).
func (c *ParagraphChunker) overlapTail(s string) string {
	words := strings.Fields(s)
	n := c.overlap / 10
	if n > len(words) {
		n = len(words)
	}
	if n <= 0 {
		return ""
	}
	return strings.Join(words[len(words)-n:], " ")
}

// splitSentences splits on ". " keeping the period with its sentence.
func splitSentences(paragraph string) []string {
	parts := strings.SplitAfter(paragraph, ". ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(p, " ")
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// fixedSlices cuts s into consecutive width-rune pieces.
func fixedSlices(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/width+1)
	for i := 0; i < len(runes); i += width {
		end := i + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// Oversized returns the IDs of text items whose content exceeds limit runes.
func Oversized(items []domain.ContentItem, limit int) []string {
	var ids []string
	for _, it := range items {
		if it.Kind() != domain.KindText {
			continue
		}
		if runeLen(it.Text()) > limit {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
