package domain

import "context"

// Chunker splits page text into bounded chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// EmbeddingService maps text and images into one shared vector space.
type EmbeddingService interface {
	Name() string
	EmbedText(ctx context.Context, text string, dimension int) ([]float64, error)
	EmbedImage(ctx context.Context, image []byte, contextText string, dimension int) ([]float64, error)
}

// Part is one piece of a generation message: either text or an image.
type Part struct {
	Text     string
	Image    []byte
	MIMEType string
}

// IsImage reports whether the part carries image bytes.
func (p Part) IsImage() bool { return len(p.Image) > 0 }

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// ImagePart builds an image part.
func ImagePart(data []byte, mimeType string) Part {
	return Part{Image: data, MIMEType: mimeType}
}

// Message is a single-turn message sent to a generator.
type Message struct {
	Role  string
	Parts []Part
}

// RoleUser is the only role pdfrag sends.
const RoleUser = "user"

// Generator produces an answer for one multi-part message.
type Generator interface {
	Name() string
	Generate(ctx context.Context, msg Message) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Logger is the structured logger injected into every component.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}
