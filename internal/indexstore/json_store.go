package indexstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"pdfrag/internal/domain"
)

// JSONStore keeps the index in a single JSON document.
type JSONStore struct {
	path string
}

var _ Store = (*JSONStore)(nil)

func NewJSONStore(path string) *JSONStore { return &JSONStore{path: path} }

type jsonDocument struct {
	SchemaVersion int       `json:"schema_version,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Source        string    `json:"source,omitempty"`
	Dimension     int       `json:"dimension,omitempty"`
	Items         []record  `json:"items"`
}

func (s *JSONStore) Location() string { return s.path }

func (s *JSONStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Save writes the index atomically (temp file + rename).
func (s *JSONStore) Save(ctx context.Context, idx Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := jsonDocument{
		SchemaVersion: CurrentSchemaVersion,
		SessionID:     idx.SessionID,
		CreatedAt:     idx.CreatedAt,
		Source:        idx.Source,
		Dimension:     idx.Dimension,
		Items:         toRecords(idx.Items),
	}
	data, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".index-*.json")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Load reads the index. Both the versioned object form and the legacy bare
// array form are accepted.
func (s *JSONStore) Load(ctx context.Context) (Index, error) {
	if err := ctx.Err(); err != nil {
		return Index{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Index{}, fmt.Errorf("%w at %s", domain.ErrNoIndex, s.path)
		}
		return Index{}, fmt.Errorf("read index: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	var doc jsonDocument
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := sonic.Unmarshal(trimmed, &doc.Items); err != nil {
			return Index{}, fmt.Errorf("decode index: %w", err)
		}
	} else if err := sonic.Unmarshal(trimmed, &doc); err != nil {
		return Index{}, fmt.Errorf("decode index: %w", err)
	}

	version, err := checkVersion(doc.SchemaVersion)
	if err != nil {
		return Index{}, err
	}
	items, err := fromRecords(doc.Items)
	if err != nil {
		return Index{}, fmt.Errorf("decode index: %w", err)
	}
	return Index{
		SchemaVersion: version,
		SessionID:     doc.SessionID,
		CreatedAt:     doc.CreatedAt,
		Source:        doc.Source,
		Dimension:     doc.Dimension,
		Items:         items,
	}, nil
}
