// Package store provides SQLite persistence for document text, the
// adaptation of the teacher's pkg/database to this domain: one row per
// document id holding its latest snapshot rather than a rich-text
// body with a language tag (SetLanguage is a named Non-goal).
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Snapshot is one document's persisted state.
type Snapshot struct {
	ID   string
	Text []byte
}

// Store wraps a SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at uri and
// runs pending migrations.
func Open(uri string) (*Store, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load retrieves a document's snapshot, returning (nil, nil) if it has
// never been persisted.
func (s *Store) Load(id string) (*Snapshot, error) {
	var snap Snapshot
	snap.ID = id
	var text string
	err := s.db.QueryRow("SELECT text FROM documents WHERE id = ?", id).Scan(&text)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	snap.Text = []byte(text)
	return &snap, nil
}

// Loader adapts Load to the signature session.Registry expects for its
// lazy-load callback.
func (s *Store) Loader() func(id string) ([]byte, bool) {
	return func(id string) ([]byte, bool) {
		snap, err := s.Load(id)
		if err != nil || snap == nil {
			return nil, false
		}
		return snap.Text, true
	}
}

// Save upserts a document's snapshot.
func (s *Store) Save(id string, text []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO documents (id, text, updated_at)
		VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			updated_at = excluded.updated_at
	`, id, string(text))
	if err != nil {
		return fmt.Errorf("store: save %s: %w", id, err)
	}
	return nil
}

// Delete removes a document's persisted snapshot.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return nil
}

// Count returns the number of persisted documents.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}
