package vertexai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.Client(), Config{ProjectID: "proj", Location: "europe-west4", Endpoint: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func TestModelURL(t *testing.T) {
	c, err := New(http.DefaultClient, Config{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t,
		"https://us-central1-aiplatform.googleapis.com/v1/projects/p/locations/us-central1/publishers/google/models/multimodalembedding@001:predict",
		c.ModelURL("multimodalembedding@001", "predict"))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{ProjectID: "p"})
	assert.Error(t, err)
	_, err = New(http.DefaultClient, Config{})
	assert.Error(t, err)
}

func TestCall_RoundTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/proj/locations/europe-west4/publishers/google/models/m:predict", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"q":"hi"}`, string(body))
		_, _ = w.Write([]byte(`{"answer":42}`))
	})

	var out struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, c.Call(context.Background(), "m", "predict", map[string]string{"q": "hi"}, &out))
	assert.Equal(t, 42, out.Answer)
}

func TestCall_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	var out map[string]interface{}
	require.NoError(t, c.Call(context.Background(), "m", "predict", struct{}{}, &out))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCall_ForbiddenIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"permission denied on project"}}`))
	})

	err := c.Call(context.Background(), "m", "predict", struct{}{}, &struct{}{})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "permission denied on project")
}

func TestCall_BadRequestIsPlainError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := c.Call(context.Background(), "m", "predict", struct{}{}, &struct{}{})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.Code)
	assert.NotErrorIs(t, err, domain.ErrServiceUnavailable)
}
