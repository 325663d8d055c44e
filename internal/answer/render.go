package answer

import (
	"fmt"
	"strings"

	"pdfrag/internal/domain"
)

// RenderChars is how much of a text match Render shows.
const RenderChars = 300

// Render formats an answer and its matches for a terminal.
func Render(a Answer) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", a.Question)
	fmt.Fprintf(&sb, "\nAnswer:\n%s\n", a.Text)
	sb.WriteString("\nTop Matching Items:\n")
	for i, m := range a.Matches {
		fmt.Fprintf(&sb, "\n--- Match %d (similarity: %.4f) ---\n", i+1, m.Similarity)
		sb.WriteString(RenderItem(m.Item))
	}
	return sb.String()
}

// RenderItem formats one item: type, 1-based page and either its text or
// its image path.
func RenderItem(it domain.ContentItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Type: %s\n", it.Kind())
	fmt.Fprintf(&sb, "Page: %d\n", it.Page+1)
	if it.Kind() == domain.KindText {
		text := it.Text()
		if short := truncate(text, RenderChars); short != text {
			fmt.Fprintf(&sb, "Content (truncated): %s...\n", short)
		} else {
			fmt.Fprintf(&sb, "Content: %s\n", text)
		}
		return sb.String()
	}
	fmt.Fprintf(&sb, "Image path: %s\n", it.Path)
	return sb.String()
}
