package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CacheEntry represents a single namespaced cache row (C3 Multi-Layer Cache).
// Layer distinguishes the cache's use (ocr, fuzzy, scryfall, job, idem);
// Subkey is the namespace-local key.
type CacheEntry struct {
	Layer     string
	Subkey    string
	Value     []byte
	CreatedAt string
	ExpiresAt string
	HitCount  int64
	LastHit   sql.NullString
}

// GetCache retrieves a cache entry by layer and subkey.
// Returns sql.ErrNoRows (wrapped) if the key does not exist.
func (s *Store) GetCache(layer, subkey string) (*CacheEntry, error) {
	c := &CacheEntry{}
	err := s.reader.QueryRow(`
		SELECT layer, subkey, value, created_at, expires_at, hit_count, last_hit
		FROM cache WHERE layer = ? AND subkey = ?`, layer, subkey,
	).Scan(
		&c.Layer, &c.Subkey, &c.Value, &c.CreatedAt, &c.ExpiresAt, &c.HitCount, &c.LastHit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get cache %s:%s: %w", layer, subkey, err)
	}
	return c, nil
}

// SetCache inserts or replaces a cache entry.
func (s *Store) SetCache(c *CacheEntry) error {
	_, err := s.writer.Exec(`
		INSERT OR REPLACE INTO cache (
			layer, subkey, value, created_at, expires_at, hit_count, last_hit
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Layer, c.Subkey, c.Value, c.CreatedAt, c.ExpiresAt, c.HitCount, c.LastHit,
	)
	if err != nil {
		return fmt.Errorf("store: set cache: %w", err)
	}
	return nil
}

// DeleteCache removes a single cache entry, used by the idempotency lock
// release path (C12) and explicit invalidation.
func (s *Store) DeleteCache(layer, subkey string) error {
	_, err := s.writer.Exec("DELETE FROM cache WHERE layer = ? AND subkey = ?", layer, subkey)
	if err != nil {
		return fmt.Errorf("store: delete cache %s:%s: %w", layer, subkey, err)
	}
	return nil
}

// DeleteExpired removes all cache entries whose expires_at timestamp is
// in the past. It returns the number of rows deleted.
func (s *Store) DeleteExpired() (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec("DELETE FROM cache WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete expired rows affected: %w", err)
	}
	return n, nil
}

// IncrementHitCount atomically increments the hit_count for a cache
// entry and updates last_hit to the current time.
func (s *Store) IncrementHitCount(layer, subkey string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec(`
		UPDATE cache SET hit_count = hit_count + 1, last_hit = ?
		WHERE layer = ? AND subkey = ?`, now, layer, subkey,
	)
	if err != nil {
		return fmt.Errorf("store: increment hit count: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: increment hit count rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: increment hit count: %w", sql.ErrNoRows)
	}
	return nil
}
