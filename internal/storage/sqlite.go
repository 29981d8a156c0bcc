package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	document   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, key)
);
`

// SQLiteStore is the SQLite-backed resource store.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open opens or creates the resource database at the given path.
func Open(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL mode for better read concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("resource store opened")

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Accounts returns the account document collection.
func (s *SQLiteStore) Accounts() Resource { return s.collection(CollectionAccounts) }

// AccessControlList returns the ACL collection.
func (s *SQLiteStore) AccessControlList() Resource { return s.collection(CollectionAccessControl) }

// ChannelInfo returns the channel metadata collection.
func (s *SQLiteStore) ChannelInfo() Resource { return s.collection(CollectionChannelInfo) }

// LoginSettings returns the login settings collection.
func (s *SQLiteStore) LoginSettings() Resource { return s.collection(CollectionLoginSettings) }

// SymbolCache returns the persisted symbol cache collection.
func (s *SQLiteStore) SymbolCache() Resource { return s.collection(CollectionSymbolCache) }

func (s *SQLiteStore) collection(name string) Resource {
	return &sqliteResource{store: s, collection: name}
}

type sqliteResource struct {
	store      *SQLiteStore
	collection string
}

func (r *sqliteResource) Exists() bool {
	var count int
	err := r.store.db.QueryRow(
		"SELECT COUNT(*) FROM resources WHERE collection = ?", r.collection).Scan(&count)
	return err == nil && count > 0
}

func (r *sqliteResource) Get(key string) (json.RawMessage, error) {
	var doc string
	err := r.store.db.QueryRow(
		"SELECT document FROM resources WHERE collection = ? AND key = ?",
		r.collection, key).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", r.collection, key, err)
	}
	return json.RawMessage(doc), nil
}

func (r *sqliteResource) Set(key string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return fmt.Errorf("refusing to store invalid JSON at %s/%s", r.collection, key)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.Exec(`
		INSERT INTO resources (collection, key, document, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, key)
		DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`,
		r.collection, key, string(doc))
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", r.collection, key, err)
	}
	return nil
}

func (r *sqliteResource) Delete(key string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.Exec(
		"DELETE FROM resources WHERE collection = ? AND key = ?", r.collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", r.collection, key, err)
	}
	return nil
}

func (r *sqliteResource) Keys() ([]string, error) {
	rows, err := r.store.db.Query(
		"SELECT key FROM resources WHERE collection = ? ORDER BY key", r.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s keys: %w", r.collection, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
