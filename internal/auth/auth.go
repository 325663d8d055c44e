// Package auth builds an authenticated HTTP session for Google Cloud
// (Vertex AI) from the first credential source that is available.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	// DefaultCredentialsEnv may hold a service-account JSON document.
	DefaultCredentialsEnv = "GOOGLE_CREDENTIALS_JSON"
)

var ErrNoCredentials = errors.New("no google credentials found")

type Config struct {
	// KeyPath is a service-account key file; it wins over every other source.
	KeyPath string
	// CredentialsEnv names an env var holding the key JSON.
	CredentialsEnv string
	// ProjectID overrides the project embedded in the credentials.
	ProjectID string
}

// Session is an authenticated client for one project.
type Session struct {
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource
	ProjectID   string
	// Source names where the credentials came from: "key_file", "env" or
	// "default".
	Source string
}

// Authenticate tries the key file, then the credentials env var, then
// application default credentials.
func Authenticate(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.CredentialsEnv == "" {
		cfg.CredentialsEnv = DefaultCredentialsEnv
	}

	var (
		creds  *google.Credentials
		source string
		err    error
	)
	switch {
	case cfg.KeyPath != "":
		data, rerr := os.ReadFile(cfg.KeyPath)
		if rerr != nil {
			return nil, fmt.Errorf("read key file: %w", rerr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, CloudPlatformScope)
		source = "key_file"
	case os.Getenv(cfg.CredentialsEnv) != "":
		creds, err = google.CredentialsFromJSON(ctx, []byte(os.Getenv(cfg.CredentialsEnv)), CloudPlatformScope)
		source = "env"
	default:
		creds, err = google.FindDefaultCredentials(ctx, CloudPlatformScope)
		source = "default"
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoCredentials, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load %s credentials: %w", source, err)
	}

	return NewSession(ctx, creds.TokenSource, firstNonEmpty(cfg.ProjectID, creds.ProjectID), source)
}

// NewSession wraps an existing token source.
func NewSession(ctx context.Context, ts oauth2.TokenSource, projectID, source string) (*Session, error) {
	if projectID == "" {
		return nil, errors.New("no google cloud project id: set project.id or GOOGLE_CLOUD_PROJECT")
	}
	return &Session{
		HTTPClient:  oauth2.NewClient(ctx, ts),
		TokenSource: ts,
		ProjectID:   projectID,
		Source:      source,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
