package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/gbordes77/screen2deck/internal/catalogue"
)

// FingerprintAdapter adapts Store to the fingerprint.FingerprintStore interface.
type FingerprintAdapter struct {
	store *Store
}

// NewFingerprintAdapter creates a new FingerprintAdapter wrapping the given Store.
func NewFingerprintAdapter(s *Store) *FingerprintAdapter {
	return &FingerprintAdapter{store: s}
}

// Upsert inserts or updates a fingerprint record.
func (a *FingerprintAdapter) Upsert(hash, idempotencyKey string) error {
	return a.store.UpsertFingerprint(&Fingerprint{
		Hash:           hash,
		IdempotencyKey: idempotencyKey,
	})
}

// Get retrieves the hit count and last seen time for a fingerprint.
// Returns zero values if the fingerprint does not exist.
func (a *FingerprintAdapter) Get(hash string) (hitCount int, lastSeen time.Time, err error) {
	f, err := a.store.GetFingerprint(hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, err
	}
	t, _ := time.Parse(time.RFC3339, f.LastSeen)
	return int(f.HitCount), t, nil
}

// CacheAdapter adapts Store to the cache.Store interface (C3).
type CacheAdapter struct {
	store *Store
}

// NewCacheAdapter creates a new CacheAdapter wrapping the given Store.
func NewCacheAdapter(s *Store) *CacheAdapter {
	return &CacheAdapter{store: s}
}

// GetCache retrieves a cache entry's value, expiry, and hit count.
func (a *CacheAdapter) GetCache(layer, subkey string) ([]byte, time.Time, int64, error) {
	c, err := a.store.GetCache(layer, subkey)
	if err != nil {
		return nil, time.Time{}, 0, err
	}
	expiresAt, _ := time.Parse(time.RFC3339, c.ExpiresAt)
	return c.Value, expiresAt, c.HitCount, nil
}

// SetCache stores a cache entry.
func (a *CacheAdapter) SetCache(layer, subkey string, value []byte, expiresAt time.Time) error {
	return a.store.SetCache(&CacheEntry{
		Layer:     layer,
		Subkey:    subkey,
		Value:     value,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// DeleteCache removes a single cache entry.
func (a *CacheAdapter) DeleteCache(layer, subkey string) error {
	return a.store.DeleteCache(layer, subkey)
}

// IncrementHitCount increments a cache entry's hit counter.
func (a *CacheAdapter) IncrementHitCount(layer, subkey string) error {
	return a.store.IncrementHitCount(layer, subkey)
}

// DeleteExpiredCache removes all expired cache entries from the store.
func (a *CacheAdapter) DeleteExpiredCache() (int64, error) {
	return a.store.DeleteExpired()
}

// CatalogueAdapter adapts Store to the catalogue.Backend interface (C2).
type CatalogueAdapter struct {
	store *Store
}

// NewCatalogueAdapter creates a new CatalogueAdapter wrapping the given Store.
func NewCatalogueAdapter(s *Store) *CatalogueAdapter {
	return &CatalogueAdapter{store: s}
}

// GetCardByNormalizedName returns matching cards as catalogue.CardRow.
func (a *CatalogueAdapter) GetCardByNormalizedName(normalized string, caseInsensitive bool) ([]*catalogue.CardRow, error) {
	cards, err := a.store.GetCardByNormalizedName(normalized, caseInsensitive)
	if err != nil {
		return nil, err
	}
	rows := make([]*catalogue.CardRow, len(cards))
	for i, c := range cards {
		rows[i] = &catalogue.CardRow{
			ID: c.ID, Name: c.Name, NameNormalized: c.NameNormalized,
			Layout: c.Layout, Faces: c.Faces, OracleID: c.OracleID,
		}
	}
	return rows, nil
}

// AllNormalizedNames returns every distinct normalized name in the catalogue.
func (a *CatalogueAdapter) AllNormalizedNames() ([]string, error) {
	return a.store.AllNormalizedNames()
}
