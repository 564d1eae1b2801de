// Command screen2deck-seed builds the offline catalogue snapshot (C2) from
// a bulk card-data JSON dump, the way the teacher ships a separate seeding
// binary alongside its main daemon rather than folding bulk-load logic
// into the server process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gbordes77/screen2deck/internal/catalogue"
	"github.com/gbordes77/screen2deck/internal/store"
)

// cardRecord is the expected shape of each entry in the input JSON dump
// (a flattened subset of a Scryfall-style bulk-data card object).
type cardRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Layout   string   `json:"layout"`
	OracleID string   `json:"oracle_id"`
	Faces    []string `json:"face_names,omitempty"`
}

func main() {
	input := flag.String("input", "", "path to a card-data JSON dump (array of card records)")
	dbPath := flag.String("db", "", "path to the screen2deck.db SQLite file to seed")
	version := flag.String("snapshot-version", time.Now().UTC().Format("2006-01-02"), "snapshot version label to record")
	flag.Parse()

	if *input == "" || *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: screen2deck-seed -input cards.json -db screen2deck.db [-snapshot-version v]")
		os.Exit(1)
	}

	if err := run(*input, *dbPath, *version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(inputPath, dbPath, snapshotVersion string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input dump: %w", err)
	}

	var records []cardRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing input dump: %w", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	for i, r := range records {
		if r.ID == "" || r.Name == "" {
			return fmt.Errorf("record %d: missing id or name", i)
		}
		card := &store.CatalogueCard{
			ID:             r.ID,
			Name:           r.Name,
			NameNormalized: catalogue.Normalize(r.Name),
			Layout:         r.Layout,
			Faces:          r.Faces,
			OracleID:       r.OracleID,
		}
		if err := st.UpsertCard(card); err != nil {
			return fmt.Errorf("record %d (%s): %w", i, r.Name, err)
		}
	}

	if err := st.SetSnapshotMetadata(snapshotVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("recording snapshot metadata: %w", err)
	}

	count, err := st.CardCount()
	if err != nil {
		return fmt.Errorf("counting seeded cards: %w", err)
	}

	fmt.Printf("seeded %d cards into %s (snapshot %s)\n", count, dbPath, snapshotVersion)
	return nil
}
