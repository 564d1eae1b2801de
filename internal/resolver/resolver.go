// Package resolver implements the Resolver (C8): it enriches parsed deck
// entries with canonical names and identifiers by consulting the
// catalogue (C2) through the multi-layer cache (C3), per spec §4.8.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gbordes77/screen2deck/internal/cache"
	"github.com/gbordes77/screen2deck/internal/catalogue"
	"github.com/gbordes77/screen2deck/internal/compress"
	"github.com/gbordes77/screen2deck/internal/deck"
)

const (
	fuzzyLayer    = "fuzzy"
	scryfallLayer = "scryfall"
	fuzzyTTL      = 2 * time.Hour
	scryfallTTL   = 24 * time.Hour
)

// Catalogue is the capability this package needs from internal/catalogue.
type Catalogue interface {
	FuzzyResolve(ctx context.Context, rawName string, topK int) (catalogue.Resolution, error)
}

// Resolver enriches CardEntry values into NormalizedCard values.
type Resolver struct {
	catalogue Catalogue
	cache     *cache.Cache
}

// New creates a Resolver over the given catalogue and cache.
func New(cat Catalogue, c *cache.Cache) *Resolver {
	return &Resolver{catalogue: cat, cache: c}
}

// Options controls per-call resolver behavior (from PipelineConfig).
type Options struct {
	AlwaysVerifyCatalogue bool
	FuzzyTopK             int
}

// Resolve enriches every entry in entries, returning NormalizedCard values
// in the same order. Each entry independently follows spec §4.8's 4 steps.
func (r *Resolver) Resolve(ctx context.Context, entries []deck.CardEntry, opts Options) ([]deck.NormalizedCard, error) {
	out := make([]deck.NormalizedCard, len(entries))
	for i, e := range entries {
		nc, err := r.resolveOne(ctx, e, opts)
		if err != nil {
			return nil, fmt.Errorf("resolver: resolving %q: %w", e.Name, err)
		}
		out[i] = nc
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, entry deck.CardEntry, opts Options) (deck.NormalizedCard, error) {
	fuzzyRes, err := r.fuzzyCached(ctx, entry.Name, opts.FuzzyTopK)
	if err != nil {
		return deck.NormalizedCard{}, err
	}

	candidates := fuzzyRes.Candidates
	canonicalName := fuzzyRes.CanonicalName
	canonicalID := fuzzyRes.ID

	if opts.AlwaysVerifyCatalogue {
		verified, err := r.scryfallCached(ctx, entry.Name, opts.FuzzyTopK)
		if err == nil {
			candidates = mergeCandidates(candidates, verified.Candidates)
			if verified.Source == catalogue.SourceExact || verified.Source == catalogue.SourceOnlineFuzzy {
				canonicalName = verified.CanonicalName
				canonicalID = verified.ID
			}
		}
	}

	return deck.NormalizedCard{
		Quantity:    entry.Quantity,
		Name:        canonicalName,
		CatalogueID: canonicalID,
		Candidates:  candidates,
	}, nil
}

// fuzzyCached wraps Catalogue.FuzzyResolve with the `fuzzy` cache layer,
// keyed by lowercased-normalized name, TTL 2h (spec §4.8 step 1).
func (r *Resolver) fuzzyCached(ctx context.Context, rawName string, topK int) (catalogue.Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(rawName))
	if cached, ok := r.cache.Get(fuzzyLayer, key); ok {
		return decodeResolution(cached)
	}
	res, err := r.catalogue.FuzzyResolve(ctx, rawName, topK)
	if err != nil {
		return catalogue.Resolution{}, err
	}
	_ = r.cache.Set(fuzzyLayer, key, encodeResolution(res), fuzzyTTL)
	return res, nil
}

// scryfallCached performs the optional full verification pass, cached in
// the `scryfall` layer for 24h, keyed by a content hash of the normalized
// name (spec §4.8 step 2).
func (r *Resolver) scryfallCached(ctx context.Context, rawName string, topK int) (catalogue.Resolution, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawName))
	key := compress.HashContent(normalized)
	if cached, ok := r.cache.Get(scryfallLayer, key); ok {
		return decodeResolution(cached)
	}
	res, err := r.catalogue.FuzzyResolve(ctx, rawName, topK)
	if err != nil {
		return catalogue.Resolution{}, err
	}
	_ = r.cache.Set(scryfallLayer, key, encodeResolution(res), scryfallTTL)
	return res, nil
}

// mergeCandidates merges two candidate lists by canonical name: first
// occurrence wins for ordering, duplicates on name are dropped (spec
// §4.8 step 3).
func mergeCandidates(local, remote []deck.Candidate) []deck.Candidate {
	seen := make(map[string]bool, len(local)+len(remote))
	out := make([]deck.Candidate, 0, len(local)+len(remote))
	for _, c := range append(append([]deck.Candidate{}, local...), remote...) {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out
}
