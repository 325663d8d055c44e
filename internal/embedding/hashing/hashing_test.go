package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/retriever"
)

func TestEmbedText_NormalizedAndDeterministic(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "Rectified flow straightens transport paths.", 64)
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "Rectified flow straightens transport paths.", 64)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	norm := 0.0
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedText_RelatedTextScoresHigher(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()

	q, _ := e.EmbedText(ctx, "What is rectified flow?", 256)
	near, _ := e.EmbedText(ctx, "Rectified flow is a method for learning transport maps.", 256)
	far, _ := e.EmbedText(ctx, "Bananas grow in tropical climates.", 256)

	assert.Greater(t, retriever.CosineSimilarity(q, near), retriever.CosineSimilarity(q, far))
}

func TestEmbedText_OnlyStopwords(t *testing.T) {
	vec, err := NewEmbedder().EmbedText(context.Background(), "the and of", 8)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 8), vec)
}

func TestEmbedText_BadDimension(t *testing.T) {
	_, err := NewEmbedder().EmbedText(context.Background(), "x", 0)
	assert.Error(t, err)
}

func TestEmbedImage_UsesContext(t *testing.T) {
	e := NewEmbedder()
	ctx := context.Background()

	img, err := e.EmbedImage(ctx, []byte{1, 2, 3}, "Image from page 4 of the document", 128)
	require.NoError(t, err)
	q, _ := e.EmbedText(ctx, "figure on page 4", 128)
	assert.Greater(t, retriever.CosineSimilarity(q, img), 0.0)

	_, err = e.EmbedImage(ctx, nil, "ctx", 128)
	assert.Error(t, err)
}
