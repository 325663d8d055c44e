package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"pdfrag/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
	seq       INTEGER PRIMARY KEY,
	id        TEXT NOT NULL UNIQUE,
	type      TEXT NOT NULL,
	content   TEXT NOT NULL,
	page      INTEGER NOT NULL,
	path      TEXT NOT NULL,
	embedding TEXT NOT NULL
);`

// SQLiteStore keeps the index in a SQLite database file. Every Save
// replaces the whole index inside one transaction.
type SQLiteStore struct {
	path string
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) *SQLiteStore { return &SQLiteStore{path: path} }

func (s *SQLiteStore) Location() string { return s.path }

func (s *SQLiteStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init index db: %w", err)
	}
	return db, nil
}

func (s *SQLiteStore) Save(ctx context.Context, idx Index) (err error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}

	meta := map[string]string{
		"schema_version": strconv.Itoa(CurrentSchemaVersion),
		"session_id":     idx.SessionID,
		"created_at":     idx.CreatedAt.Format(time.RFC3339),
		"source":         idx.Source,
		"dimension":      strconv.Itoa(idx.Dimension),
	}
	for k, v := range meta {
		if _, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO items (seq, id, type, content, page, path, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range toRecords(idx.Items) {
		var emb []byte
		emb, err = sonic.Marshal(r.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding %s: %w", r.ID, err)
		}
		if _, err = stmt.ExecContext(ctx, i, r.ID, r.Type, r.Content, r.Page, r.Path, string(emb)); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Index, error) {
	if !s.Exists() {
		return Index{}, fmt.Errorf("%w at %s", domain.ErrNoIndex, s.path)
	}
	db, err := s.open(ctx)
	if err != nil {
		return Index{}, err
	}
	defer db.Close()

	meta := map[string]string{}
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Index{}, fmt.Errorf("read meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return Index{}, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()

	rawVersion, _ := strconv.Atoi(meta["schema_version"])
	version, err := checkVersion(rawVersion)
	if err != nil {
		return Index{}, err
	}
	dimension, _ := strconv.Atoi(meta["dimension"])
	createdAt, _ := time.Parse(time.RFC3339, meta["created_at"])

	rows, err = db.QueryContext(ctx, `SELECT id, type, content, page, path, embedding FROM items ORDER BY seq`)
	if err != nil {
		return Index{}, fmt.Errorf("read items: %w", err)
	}
	defer rows.Close()

	var records []record
	for rows.Next() {
		var r record
		var emb string
		if err := rows.Scan(&r.ID, &r.Type, &r.Content, &r.Page, &r.Path, &emb); err != nil {
			return Index{}, fmt.Errorf("scan item: %w", err)
		}
		if err := sonic.UnmarshalString(emb, &r.Embedding); err != nil {
			return Index{}, fmt.Errorf("decode embedding %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return Index{}, fmt.Errorf("read items: %w", err)
	}

	items, err := fromRecords(records)
	if err != nil {
		return Index{}, err
	}
	return Index{
		SchemaVersion: version,
		SessionID:     meta["session_id"],
		CreatedAt:     createdAt,
		Source:        meta["source"],
		Dimension:     dimension,
		Items:         items,
	}, nil
}
