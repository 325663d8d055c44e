package domain

import (
	"encoding/base64"
	"fmt"
)

// Kind distinguishes text chunks from extracted images.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Content is the kind-specific payload of a ContentItem.
// It is either TextContent or ImageContent.
type Content interface {
	Kind() Kind
	isContent()
}

// TextContent holds one chunk of page text.
type TextContent struct {
	Text string
}

func (TextContent) Kind() Kind { return KindText }
func (TextContent) isContent() {}

// ImageContent holds raw PNG bytes. Data is nil until the image has been
// materialized from its backing file.
type ImageContent struct {
	Data []byte
}

func (ImageContent) Kind() Kind { return KindImage }
func (ImageContent) isContent() {}

// Base64 returns the transport encoding of the image bytes.
func (c ImageContent) Base64() string {
	if len(c.Data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(c.Data)
}

// Materialized reports whether the image bytes are present.
func (c ImageContent) Materialized() bool { return len(c.Data) > 0 }

// ContentItem is one indexed unit of evidence: a text chunk or an image.
type ContentItem struct {
	ID        string
	Page      int
	Path      string
	Content   Content
	Embedding []float64
}

// Kind returns the item kind derived from its content variant.
func (it ContentItem) Kind() Kind {
	if it.Content == nil {
		return KindText
	}
	return it.Content.Kind()
}

// Text returns the chunk text for text items and "" otherwise.
func (it ContentItem) Text() string {
	if tc, ok := it.Content.(TextContent); ok {
		return tc.Text
	}
	return ""
}

// Image returns the image payload for image items.
func (it ContentItem) Image() (ImageContent, bool) {
	ic, ok := it.Content.(ImageContent)
	return ic, ok
}

// Embedded reports whether the item carries an embedding.
func (it ContentItem) Embedded() bool { return it.Embedding != nil }

// Clone returns a deep copy so callers can hand items out without sharing
// the embedding or image buffers.
func (it ContentItem) Clone() ContentItem {
	out := it
	if it.Embedding != nil {
		out.Embedding = append([]float64(nil), it.Embedding...)
	}
	if ic, ok := it.Content.(ImageContent); ok && ic.Data != nil {
		out.Content = ImageContent{Data: append([]byte(nil), ic.Data...)}
	}
	return out
}

// ItemID formats the stable identifier for an extracted item.
func ItemID(kind Kind, page, ordinal int) string {
	return fmt.Sprintf("%s_%d_%d", kind, page, ordinal)
}

// Match is a retrieved item with its similarity to the query.
type Match struct {
	Item       ContentItem
	Similarity float64
}

// ItemFailure records a recoverable error for a single item.
type ItemFailure struct {
	ID    string
	Stage string
	Err   error
}

func (f ItemFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Stage, f.ID, f.Err)
}

func (f ItemFailure) Unwrap() error { return f.Err }
