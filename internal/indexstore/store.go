// Package indexstore persists embedded content items and reads them back.
//
// Two backends share the same serialization policy: embeddings are stored as
// plain number arrays, text content is stored verbatim, and image content is
// replaced by a placeholder because the bytes already live in the item's
// backing file. Loading never touches backing files; call Materialize for
// that.
package indexstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pdfrag/internal/domain"
)

// ImagePlaceholder replaces image payloads on disk.
const ImagePlaceholder = "[BASE64_IMAGE]"

// CurrentSchemaVersion is written by Save. Files without a version are
// read as version 1.
const CurrentSchemaVersion = 2

// ErrUnsupportedSchema is returned for index files written by a newer release.
var ErrUnsupportedSchema = errors.New("unsupported index schema version")

// Index is one document-processing session: the embedded items plus header
// metadata.
type Index struct {
	SchemaVersion int
	SessionID     string
	CreatedAt     time.Time
	Source        string
	Dimension     int
	Items         []domain.ContentItem
}

// New builds an index for a fresh session.
func New(source string, dimension int, items []domain.ContentItem) Index {
	return Index{
		SchemaVersion: CurrentSchemaVersion,
		SessionID:     uuid.NewString(),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		Source:        source,
		Dimension:     dimension,
		Items:         items,
	}
}

// Store reads and writes a whole index at one location.
type Store interface {
	Save(ctx context.Context, idx Index) error
	Load(ctx context.Context) (Index, error)
	Exists() bool
	Location() string
}

// Open returns the store for the named backend ("json" or "sqlite").
func Open(backend, path string) (Store, error) {
	switch backend {
	case "json", "":
		return NewJSONStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", backend)
	}
}

// record is the on-disk shape of one item, shared by both backends.
type record struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Page      int       `json:"page"`
	Path      string    `json:"path"`
	Embedding []float64 `json:"embedding"`
}

// toRecords drops items without embeddings: the index holds only fully
// embedded items.
func toRecords(items []domain.ContentItem) []record {
	out := make([]record, 0, len(items))
	for _, it := range items {
		if it.Embedding == nil {
			continue
		}
		r := record{
			ID:        it.ID,
			Type:      string(it.Kind()),
			Page:      it.Page,
			Path:      it.Path,
			Embedding: it.Embedding,
		}
		switch it.Kind() {
		case domain.KindImage:
			r.Content = ImagePlaceholder
		default:
			r.Content = it.Text()
		}
		out = append(out, r)
	}
	return out
}

func fromRecords(records []record) ([]domain.ContentItem, error) {
	items := make([]domain.ContentItem, 0, len(records))
	for _, r := range records {
		it := domain.ContentItem{
			ID:        r.ID,
			Page:      r.Page,
			Path:      r.Path,
			Embedding: r.Embedding,
		}
		switch domain.Kind(r.Type) {
		case domain.KindText:
			it.Content = domain.TextContent{Text: r.Content}
		case domain.KindImage:
			it.Content = domain.ImageContent{Data: legacyImagePayload(r.Content)}
		default:
			return nil, fmt.Errorf("item %s: unknown type %q", r.ID, r.Type)
		}
		items = append(items, it)
	}
	return items, nil
}

// legacyImagePayload decodes an inline base64 payload left by writers that
// did not use the placeholder. Anything else yields nil.
func legacyImagePayload(content string) []byte {
	if content == "" || content == ImagePlaceholder {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil
	}
	return data
}

func checkVersion(v int) (int, error) {
	if v == 0 {
		v = 1
	}
	if v > CurrentSchemaVersion {
		return v, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedSchema, v, CurrentSchemaVersion)
	}
	return v, nil
}
