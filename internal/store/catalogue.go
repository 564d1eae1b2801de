package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// CatalogueCard is a canonical card record from the catalogue snapshot (C2).
type CatalogueCard struct {
	ID             string
	Name           string
	NameNormalized string
	Layout         string
	Faces          []string // JSON-encoded in storage
	OracleID       string
}

// UpsertCard inserts or replaces a catalogue card record.
func (s *Store) UpsertCard(c *CatalogueCard) error {
	faces, err := json.Marshal(c.Faces)
	if err != nil {
		return fmt.Errorf("store: marshal faces for card %s: %w", c.ID, err)
	}
	_, err = s.writer.Exec(`
		INSERT INTO cards (id, name, name_normalized, layout, faces, oracle_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_normalized = excluded.name_normalized,
			layout = excluded.layout,
			faces = excluded.faces,
			oracle_id = excluded.oracle_id`,
		c.ID, c.Name, c.NameNormalized, c.Layout, string(faces), c.OracleID,
	)
	if err != nil {
		return fmt.Errorf("store: upsert card %s: %w", c.ID, err)
	}
	return nil
}

// GetCardByNormalizedName returns every card whose normalized name matches.
// Several cards (reprints) may share a normalized name.
func (s *Store) GetCardByNormalizedName(normalized string, caseInsensitive bool) ([]*CatalogueCard, error) {
	query := `SELECT id, name, name_normalized, layout, faces, oracle_id FROM cards WHERE name_normalized = ?`
	if caseInsensitive {
		query = `SELECT id, name, name_normalized, layout, faces, oracle_id FROM cards WHERE LOWER(name_normalized) = LOWER(?)`
	}
	rows, err := s.reader.Query(query, normalized)
	if err != nil {
		return nil, fmt.Errorf("store: lookup card by normalized name: %w", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// AllNormalizedNames returns every distinct normalized name in the
// catalogue, for corpus-wide fuzzy scoring.
func (s *Store) AllNormalizedNames() ([]string, error) {
	rows, err := s.reader.Query(`SELECT DISTINCT name_normalized FROM cards ORDER BY name_normalized`)
	if err != nil {
		return nil, fmt.Errorf("store: list normalized names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: scan normalized name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// CardCount returns the number of cards currently stored.
func (s *Store) CardCount() (int, error) {
	var n int
	err := s.reader.QueryRow(`SELECT COUNT(*) FROM cards`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count cards: %w", err)
	}
	return n, nil
}

func scanCards(rows *sql.Rows) ([]*CatalogueCard, error) {
	var results []*CatalogueCard
	for rows.Next() {
		c := &CatalogueCard{}
		var facesJSON string
		if err := rows.Scan(&c.ID, &c.Name, &c.NameNormalized, &c.Layout, &facesJSON, &c.OracleID); err != nil {
			return nil, fmt.Errorf("store: scan card row: %w", err)
		}
		if facesJSON != "" {
			_ = json.Unmarshal([]byte(facesJSON), &c.Faces)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// SetSnapshotMetadata records the active catalogue snapshot version.
func (s *Store) SetSnapshotMetadata(version string, createdAt string) error {
	_, err := s.writer.Exec(`
		INSERT INTO catalogue_metadata (id, snapshot_version, created_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot_version = excluded.snapshot_version, created_at = excluded.created_at`,
		version, createdAt,
	)
	if err != nil {
		return fmt.Errorf("store: set snapshot metadata: %w", err)
	}
	return nil
}

// SnapshotMetadata returns the active snapshot version and creation time,
// or sql.ErrNoRows (wrapped) if no snapshot has been loaded yet.
func (s *Store) SnapshotMetadata() (version, createdAt string, err error) {
	err = s.reader.QueryRow(`SELECT snapshot_version, created_at FROM catalogue_metadata WHERE id = 1`).Scan(&version, &createdAt)
	if err != nil {
		return "", "", fmt.Errorf("store: get snapshot metadata: %w", err)
	}
	return version, createdAt, nil
}
