// Package hashing is an offline EmbeddingService. Terms are hashed into a
// fixed number of buckets, weighted by term frequency and L2 normalized,
// so it needs no corpus preparation and no network.
package hashing

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"pdfrag/internal/domain"
)

// Embedder hashes text into term-frequency vectors of the requested size.
type Embedder struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

var _ domain.EmbeddingService = (*Embedder)(nil)

// NewEmbedder creates a hashing embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// EmbedText computes the hashed term-frequency embedding for text.
func (e *Embedder) EmbedText(ctx context.Context, text string, dimension int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, errors.New("dimension must be positive")
	}
	vec := make([]float64, dimension)
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}
	for _, tok := range tokens {
		idx, sign := bucket(tok, dimension)
		vec[idx] += sign / float64(len(tokens))
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EmbedImage cannot look at pixels; it embeds the context text instead so
// images are still reachable by page references.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte, contextText string, dimension int) ([]float64, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	return e.EmbedText(ctx, contextText+" image figure picture", dimension)
}

// bucket picks a slot and a sign for a term. The sign keeps collisions from
// only ever adding up.
func bucket(term string, dimension int) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum64()
	sign := 1.0
	if sum&(1<<63) != 0 {
		sign = -1.0
	}
	return int(sum % uint64(dimension)), sign
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "does", "do", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
