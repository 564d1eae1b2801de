// Package catalogue implements the offline-first card catalogue (C2):
// exact and fuzzy name resolution over a local snapshot, with an optional
// rate-limited online fallback.
package catalogue

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gbordes77/screen2deck/internal/deck"
)

// Source identifies which resolution step produced a Resolution.
type Source string

const (
	SourceExact        Source = "exact"
	SourceOfflineFuzzy Source = "offline_fuzzy"
	SourceOnlineFuzzy  Source = "online_fuzzy"
	SourceAutocomplete Source = "autocomplete"
	SourceRaw          Source = "raw"
)

// Card mirrors store.CatalogueCard to keep this package independent of the
// storage layer's concrete type.
type Card struct {
	ID             string
	Name           string
	NameNormalized string
	Layout         string
	Faces          []string
	OracleID       string
}

// DisplayName returns the canonical display name for the card's layout,
// per spec §4.2's special-layout rules.
func (c Card) DisplayName() string {
	switch c.Layout {
	case "split":
		if len(c.Faces) == 2 {
			return c.Faces[0] + " // " + c.Faces[1]
		}
	case "transform", "modal_dfc":
		if len(c.Faces) > 0 {
			return c.Faces[0]
		}
	case "adventure":
		if len(c.Faces) > 0 {
			return c.Faces[0] // creature face is canonical
		}
	}
	return c.Name
}

// Resolution is the result of FuzzyResolve.
type Resolution struct {
	CanonicalName string
	ID            string
	Source        Source
	Candidates    []deck.Candidate
}

// Backend is the persistence contract this package needs from the store
// layer; narrowed the way FingerprintAdapter narrows *store.Store.
type Backend interface {
	GetCardByNormalizedName(normalized string, caseInsensitive bool) ([]*CardRow, error)
	AllNormalizedNames() ([]string, error)
}

// CardRow is the minimal row shape Backend returns; store.CatalogueCard
// satisfies this via an adapter (see store.CatalogueAdapter).
type CardRow struct {
	ID             string
	Name           string
	NameNormalized string
	Layout         string
	Faces          []string
	OracleID       string
}

// OnlineClient abstracts the remote catalogue collaborator (C2 steps 3-4).
// Implementations are rate-limited by the gate inside Store, not by
// themselves.
type OnlineClient interface {
	FuzzyResolve(ctx context.Context, rawName string, topK int) ([]deck.Candidate, error)
	Autocomplete(ctx context.Context, rawName string, topK int) ([]deck.Candidate, error)
}

// Store is the in-memory fuzzy-resolution engine over a hydrated snapshot.
type Store struct {
	backend Backend
	online  OnlineClient // nil disables online fallback

	names atomic.Pointer[[]string] // rebuilt atomically at hydration

	normCache *lru.Cache[string, string]

	remoteGate *minIntervalGate
	remoteTO   time.Duration
}

// New creates a Store. normCacheSize bounds the name-normalization LRU.
// remoteMinInterval and remoteTimeout gate and bound online calls.
func New(backend Backend, online OnlineClient, normCacheSize int, remoteMinInterval, remoteTimeout time.Duration) (*Store, error) {
	if normCacheSize <= 0 {
		normCacheSize = 4096
	}
	nc, err := lru.New[string, string](normCacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalogue: creating normalization cache: %w", err)
	}
	s := &Store{
		backend:    backend,
		online:     online,
		normCache:  nc,
		remoteGate: newMinIntervalGate(remoteMinInterval),
		remoteTO:   remoteTimeout,
	}
	empty := []string{}
	s.names.Store(&empty)
	return s, nil
}

// Hydrate rebuilds the in-memory normalized-name index from the backend
// off to the side, then atomically swaps it in — readers never observe a
// torn index (spec §5).
func (s *Store) Hydrate() error {
	names, err := s.backend.AllNormalizedNames()
	if err != nil {
		return fmt.Errorf("catalogue: hydrate: %w", err)
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	s.names.Store(&sorted)
	return nil
}

// normalize normalizes name via the bounded LRU cache.
func (s *Store) normalize(name string) string {
	if v, ok := s.normCache.Get(name); ok {
		return v
	}
	n := Normalize(name)
	s.normCache.Add(name, n)
	return n
}

// cardByNormalizedName resolves a normalized lookup key back to its source
// Card, the way LookupExact does for user input — needed because the fuzzy
// corpus in s.names holds normalized keys, not canonical records.
func (s *Store) cardByNormalizedName(normalized string) (Card, bool) {
	rows, err := s.backend.GetCardByNormalizedName(normalized, false)
	if err != nil || len(rows) == 0 {
		return Card{}, false
	}
	r := rows[0]
	return Card{ID: r.ID, Name: r.Name, NameNormalized: r.NameNormalized, Layout: r.Layout, Faces: r.Faces, OracleID: r.OracleID}, true
}

// LookupExact returns zero or more canonical cards matching name exactly
// (after normalization).
func (s *Store) LookupExact(name string, caseInsensitive bool) ([]Card, error) {
	normalized := s.normalize(name)
	rows, err := s.backend.GetCardByNormalizedName(normalized, caseInsensitive)
	if err != nil {
		return nil, fmt.Errorf("catalogue: lookup exact %q: %w", name, err)
	}
	cards := make([]Card, len(rows))
	for i, r := range rows {
		cards[i] = Card{ID: r.ID, Name: r.Name, NameNormalized: r.NameNormalized, Layout: r.Layout, Faces: r.Faces, OracleID: r.OracleID}
	}
	return cards, nil
}

// FuzzyResolve implements the 5-step algorithm of spec §4.2 in order,
// first conclusive step wins.
func (s *Store) FuzzyResolve(ctx context.Context, rawName string, topK int) (Resolution, error) {
	// Step 1: case-insensitive exact match.
	if cards, err := s.LookupExact(rawName, true); err == nil && len(cards) > 0 {
		c := cards[0]
		return Resolution{
			CanonicalName: c.DisplayName(),
			ID:            c.ID,
			Source:        SourceExact,
			Candidates:    []deck.Candidate{{Name: c.DisplayName(), Score: 100, ID: c.ID}},
		}, nil
	}

	// Step 2: weighted fuzzy score over the corpus.
	normalizedRaw := s.normalize(rawName)
	names := *s.names.Load()
	type scored struct {
		name  string
		score float64
	}
	var best []scored
	for _, n := range names {
		sc := weightedScore(normalizedRaw, n)
		best = append(best, scored{n, sc})
	}
	sort.Slice(best, func(i, j int) bool { return best[i].score > best[j].score })

	if len(best) > 0 && best[0].score >= 85 {
		limit := topK
		if limit > len(best) {
			limit = len(best)
		}
		var candidates []deck.Candidate
		for _, b := range best[:limit] {
			name, id := b.name, ""
			if c, ok := s.cardByNormalizedName(b.name); ok {
				name, id = c.DisplayName(), c.ID
			}
			candidates = append(candidates, deck.Candidate{Name: name, Score: b.score, ID: id})
		}

		winner, ok := s.cardByNormalizedName(best[0].name)
		if !ok {
			// best[0].name came straight from this same backend's index, so
			// this should be unreachable; fall back to the normalized key
			// rather than return a broken Resolution.
			return Resolution{
				CanonicalName: best[0].name,
				Source:        SourceOfflineFuzzy,
				Candidates:    candidates,
			}, nil
		}
		return Resolution{
			CanonicalName: winner.DisplayName(),
			ID:            winner.ID,
			Source:        SourceOfflineFuzzy,
			Candidates:    candidates,
		}, nil
	}

	// Step 3: online fuzzy resolve, single rate-limited call.
	if s.online != nil && s.remoteGate.allow() {
		callCtx, cancel := context.WithTimeout(ctx, s.remoteTO)
		candidates, err := s.online.FuzzyResolve(callCtx, rawName, topK)
		cancel()
		if err == nil && len(candidates) > 0 {
			return Resolution{
				CanonicalName: candidates[0].Name,
				ID:            candidates[0].ID,
				Source:        SourceOnlineFuzzy,
				Candidates:    candidates,
			}, nil
		}
	}

	// Step 4: autocomplete, also rate-limited.
	if s.online != nil && s.remoteGate.allow() {
		callCtx, cancel := context.WithTimeout(ctx, s.remoteTO)
		candidates, err := s.online.Autocomplete(callCtx, rawName, topK)
		cancel()
		if err == nil && len(candidates) > 0 {
			return Resolution{
				CanonicalName: rawName,
				Source:        SourceAutocomplete,
				Candidates:    candidates,
			}, nil
		}
	}

	// Step 5: give up, return the raw name unchanged.
	return Resolution{
		CanonicalName: rawName,
		Source:        SourceRaw,
	}, nil
}
