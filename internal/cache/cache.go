// package cache provides a sqlite-backed TTL cache for API responses and
// affinity results.
//
// Cached values are JSON-serialized. A cache failure is never fatal to the
// caller: misses and storage errors both read as "not cached".
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/soulmate/internal/shared"
)

// Default TTLs per cached resource.
const (
	TTLTopArtists = 15 * time.Minute
	TTLProfile    = 30 * time.Minute
	TTLAffinity   = time.Hour
)

// Store persists cache entries in the cache_entries table.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database connection. The schema is
// managed by [shared.RunMigrations].
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Key derives a stable cache key from a namespace and argument parts.
// Arguments are hashed so tokens never appear in the database.
func Key(namespace string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("%s:%s", namespace, hex.EncodeToString(sum[:8]))
}

// Get loads a cached value into dest. Returns false on a miss, an expired
// entry, or a decode failure.
func (s *Store) Get(key string, dest any) (bool, error) {
	var payload []byte
	var expiresAt time.Time

	err := s.db.QueryRow(
		`SELECT payload, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query cache: %w", err)
	}

	if time.Now().After(expiresAt) {
		// Lazy expiry: purge on read.
		s.Delete(key)
		return false, nil
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached payload: %w", err)
	}

	return true, nil
}

// Set stores a value under key with the given TTL, replacing any previous entry.
func (s *Store) Set(key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}

	query := `
		INSERT INTO cache_entries (key, id, payload, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET id = excluded.id, payload = excluded.payload, expires_at = excluded.expires_at
	`

	_, err = s.db.Exec(query, key, shared.GenerateID(), payload, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// Delete removes a single entry.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry, or only a namespace's entries when prefix is non-empty.
func (s *Store) Clear(prefix string) (int64, error) {
	var result sql.Result
	var err error

	if prefix == "" {
		result, err = s.db.Exec(`DELETE FROM cache_entries`)
	} else {
		result, err = s.db.Exec(`DELETE FROM cache_entries WHERE key LIKE ?`, prefix+":%")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared entries: %w", err)
	}

	return rows, nil
}

// Purge removes all expired entries and returns how many were dropped.
func (s *Store) Purge() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged entries: %w", err)
	}

	return rows, nil
}
