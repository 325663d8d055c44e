// Package vertex embeds text and images with the Vertex AI multimodal
// embedding model, which places both in one vector space.
package vertex

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"pdfrag/internal/domain"
	"pdfrag/internal/vertexai"
)

const DefaultModel = "multimodalembedding@001"

type Embedder struct {
	client *vertexai.Client
	model  string
}

var _ domain.EmbeddingService = (*Embedder)(nil)

func NewEmbedder(client *vertexai.Client, model string) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Name() string { return "vertex:" + e.model }

type image struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type instance struct {
	Text  string `json:"text,omitempty"`
	Image *image `json:"image,omitempty"`
}

type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters struct {
		Dimension int `json:"dimension"`
	} `json:"parameters"`
}

type predictResponse struct {
	Predictions []struct {
		TextEmbedding  []float64 `json:"textEmbedding"`
		ImageEmbedding []float64 `json:"imageEmbedding"`
	} `json:"predictions"`
}

func (e *Embedder) EmbedText(ctx context.Context, text string, dimension int) ([]float64, error) {
	out, err := e.predict(ctx, instance{Text: text}, dimension)
	if err != nil {
		return nil, err
	}
	if len(out.Predictions[0].TextEmbedding) == 0 {
		return nil, errors.New("vertex: response has no text embedding")
	}
	return out.Predictions[0].TextEmbedding, nil
}

// EmbedImage sends the image together with contextText and returns the image
// embedding.
func (e *Embedder) EmbedImage(ctx context.Context, img []byte, contextText string, dimension int) ([]float64, error) {
	if len(img) == 0 {
		return nil, errors.New("empty image")
	}
	in := instance{
		Text:  contextText,
		Image: &image{BytesBase64Encoded: base64.StdEncoding.EncodeToString(img)},
	}
	out, err := e.predict(ctx, in, dimension)
	if err != nil {
		return nil, err
	}
	if len(out.Predictions[0].ImageEmbedding) == 0 {
		return nil, errors.New("vertex: response has no image embedding")
	}
	return out.Predictions[0].ImageEmbedding, nil
}

func (e *Embedder) predict(ctx context.Context, in instance, dimension int) (*predictResponse, error) {
	req := predictRequest{Instances: []instance{in}}
	req.Parameters.Dimension = dimension

	var out predictResponse
	if err := e.client.Call(ctx, e.model, "predict", req, &out); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(out.Predictions) == 0 {
		return nil, errors.New("vertex: empty predictions")
	}
	return &out, nil
}
