// Package sqlite provides a SQLite-backed content store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/passagehq/passage/internal/content"
)

// Store is a SQLite implementation of content.Store.
type Store struct {
	db *sql.DB
}

var _ content.Store = (*Store)(nil)

// New opens (creating if needed) a content store at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		cid TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *Store) Resolve(ctx context.Context, id string) ([]byte, bool, error) {
	if err := content.ValidateID(id); err != nil {
		return nil, false, err
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT content FROM blobs WHERE cid = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", id, err)
	}
	return blob, true, nil
}

func (s *Store) Put(ctx context.Context, blob []byte) (string, error) {
	cid := content.CID(blob)

	// Content addressing makes the insert idempotent: an existing row
	// already holds identical bytes.
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO blobs (cid, content) VALUES (?, ?) ON CONFLICT(cid) DO NOTHING",
		cid, blob,
	)
	if err != nil {
		return "", fmt.Errorf("put: %w", err)
	}
	return cid, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
