// Package answer turns retrieved matches into a grounded prompt and asks a
// generator for an answer, degrading step by step when generation fails.
package answer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pdfrag/internal/domain"
)

const (
	DefaultContextPreviewChars = 500

	imageNote = "\n\n[Note: Images could not be processed due to an error]"
)

// Mode records which generation attempt produced the answer.
type Mode string

const (
	ModeMultimodal  Mode = "multimodal"
	ModeTextOnly    Mode = "text_only"
	ModeContextOnly Mode = "context_only"
)

type Answer struct {
	Question    string
	Text        string
	TextContext string
	Matches     []domain.Match
	Mode        Mode
	// Err is the last generation error when Mode is ModeContextOnly.
	Err error
	// ImagesSent counts the image parts attached to the first attempt.
	ImagesSent int
}

type Config struct {
	ContextPreviewChars int
}

type Assembler struct {
	gen domain.Generator
	cfg Config
	log domain.Logger
}

func New(gen domain.Generator, cfg Config, log domain.Logger) *Assembler {
	if cfg.ContextPreviewChars <= 0 {
		cfg.ContextPreviewChars = DefaultContextPreviewChars
	}
	return &Assembler{gen: gen, cfg: cfg, log: log}
}

// BuildPrompt renders the question and the text matches. Image matches are
// not part of the prompt text.
func BuildPrompt(question string, matches []domain.Match) (prompt, textContext string) {
	var parts []string
	for _, m := range matches {
		if m.Item.Kind() != domain.KindText {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Content from page %d]\n%s", m.Item.Page+1, m.Item.Text()))
	}
	textContext = strings.Join(parts, "\n\n")

	var sb strings.Builder
	sb.WriteString("Answer the following question about the document based on the provided context and images:\n\n")
	sb.WriteString("QUESTION: " + question + "\n\n")
	sb.WriteString("TEXT CONTEXT:\n" + textContext + "\n\n")
	sb.WriteString("Provide a comprehensive answer based solely on the information in the context.\n")
	sb.WriteString("If the information isn't available in the context, please state that clearly.\n")
	return sb.String(), textContext
}

// Answer never fails: when both generation attempts fail the answer carries
// the error and a preview of the retrieved context instead.
func (a *Assembler) Answer(ctx context.Context, question string, matches []domain.Match) Answer {
	prompt, textContext := BuildPrompt(question, matches)
	out := Answer{Question: question, TextContext: textContext, Matches: matches}

	msg := domain.Message{Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart(prompt)}}
	for _, m := range matches {
		img, ok := m.Item.Image()
		if !ok {
			continue
		}
		data := img.Data
		if !img.Materialized() {
			var err error
			if data, err = os.ReadFile(m.Item.Path); err != nil {
				a.log.Warn("could not load image for generation", "id", m.Item.ID, "path", m.Item.Path, "err", err)
				continue
			}
		}
		msg.Parts = append(msg.Parts, domain.ImagePart(data, "image/png"))
		out.ImagesSent++
	}

	text, err := a.gen.Generate(ctx, msg)
	if err == nil {
		out.Text, out.Mode = text, ModeMultimodal
		return out
	}
	a.log.Warn("generation failed, retrying without images", "generator", a.gen.Name(), "images", out.ImagesSent, "err", err)

	textOnly := domain.Message{Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart(prompt)}}
	text, err = a.gen.Generate(ctx, textOnly)
	if err == nil {
		out.Text, out.Mode = text+imageNote, ModeTextOnly
		return out
	}
	a.log.Error("text-only generation failed", "generator", a.gen.Name(), "err", err)

	out.Mode, out.Err = ModeContextOnly, err
	out.Text = fmt.Sprintf("Error generating response: %v\n\nRetrieved context:\n%s...",
		err, truncate(textContext, a.cfg.ContextPreviewChars))
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
