package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewSession_AttachesBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123"})
	s, err := NewSession(context.Background(), ts, "proj", "test")
	require.NoError(t, err)
	assert.Equal(t, "proj", s.ProjectID)

	resp, err := s.HTTPClient.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
}

func TestNewSession_RequiresProject(t *testing.T) {
	_, err := NewSession(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{}), "", "test")
	assert.Error(t, err)
}

func TestAuthenticate_MissingKeyFile(t *testing.T) {
	_, err := Authenticate(context.Background(), Config{KeyPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAuthenticate_InvalidEnvJSON(t *testing.T) {
	t.Setenv("PDFRAG_TEST_CREDS", "{not json")
	_, err := Authenticate(context.Background(), Config{CredentialsEnv: "PDFRAG_TEST_CREDS"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env credentials")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
