package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("PDFRAG_TEST_OPENAI_KEY", "sk-test")
	g, err := NewGenerator(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "PDFRAG_TEST_OPENAI_KEY"})
	require.NoError(t, err)
	return g
}

func TestGenerate_SendsImagesAsDataURLs(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, sonic.Unmarshal(body, &req))
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "prompt", req.Messages[0].Content[0].Text)
		assert.Equal(t, "data:image/png;base64,AQI=", req.Messages[0].Content[1].ImageURL.URL)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" The answer. "},"finish_reason":"stop"}]}`))
	})

	out, err := g.Generate(context.Background(), domain.Message{Parts: []domain.Part{
		domain.TextPart("prompt"),
		domain.ImagePart([]byte{1, 2}, ""),
	}})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", out)
}

func TestGenerate_Unauthorized(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := g.Generate(context.Background(), domain.Message{Parts: []domain.Part{domain.TextPart("q")}})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestGenerate_NoChoices(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := g.Generate(context.Background(), domain.Message{Parts: []domain.Part{domain.TextPart("q")}})
	assert.Error(t, err)
}

func TestNewGenerator_MissingKey(t *testing.T) {
	_, err := NewGenerator(Config{APIKeyEnv: "PDFRAG_SURELY_UNSET_KEY"})
	assert.Error(t, err)
}
