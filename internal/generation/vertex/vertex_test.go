package vertex

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
	"pdfrag/internal/vertexai"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := vertexai.New(srv.Client(), vertexai.Config{ProjectID: "p", Endpoint: srv.URL})
	require.NoError(t, err)
	return NewGenerator(c, "")
}

func TestGenerate_MultimodalRequest(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/models/gemini-1.5-flash:generateContent")
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"contents":[{"role":"user","parts":[
			{"text":"question"},
			{"inlineData":{"mimeType":"image/png","data":"AQI="}}
		]}]}`, string(body))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Rectified "},{"text":"flow."}]}}]}`))
	})

	msg := domain.Message{Role: domain.RoleUser, Parts: []domain.Part{
		domain.TextPart("question"),
		domain.ImagePart([]byte{1, 2}, "image/png"),
	}}
	out, err := g.Generate(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "Rectified flow.", out)
}

func TestGenerate_Blocked(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	})

	_, err := g.Generate(context.Background(), domain.Message{Parts: []domain.Part{domain.TextPart("q")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerate_ServerRejectsImage(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"unsupported image"}}`))
	})

	_, err := g.Generate(context.Background(), domain.Message{Parts: []domain.Part{domain.TextPart("q")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image")
}
