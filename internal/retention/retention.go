// Package retention implements the Retention Engine (C14): scheduled
// bounded deletion of images, jobs, fingerprints, cache entries, and
// per-principal export/erasure, generalized from the store layer's
// Prune* methods into the four fixed cadences spec §4.14 names.
package retention

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gbordes77/screen2deck/internal/store"
)

// Backend is the persistence capability this package needs.
type Backend interface {
	PruneJobsOlderThan(cutoff time.Time) (int64, error)
	PruneExpiredCache(cutoff time.Time) (int64, error)
	PruneFingerprintsOlderThan(cutoff time.Time) (int64, error)
	PruneExpiredIdemLocks(cutoff time.Time) (int64, error)
	DeleteByPrincipal(principal string) (int64, error)
	ListJobsByPrincipal(principal string, limit int) ([]*store.Job, error)
	GetJob(id string) (*store.Job, error)
	GetFingerprint(hash string) (*store.Fingerprint, error)
	DeleteJob(id string) (int64, error)
	DeleteFingerprint(hash string) (int64, error)
}

// Config carries the retention windows from config.RetentionConfig plus
// the on-disk image directory the hourly sweep cleans.
type Config struct {
	ImagesRetention  time.Duration
	JobsRetention    time.Duration
	HashesRetention  time.Duration
	LogsRetention    time.Duration
	MetricsRetention time.Duration
	ImageDir         string
	LogDir           string
}

// Engine runs the scheduled retention sweeps and the per-principal
// export/erasure operations.
type Engine struct {
	backend Backend
	cfg     Config
}

// New creates a retention Engine.
func New(backend Backend, cfg Config) *Engine {
	return &Engine{backend: backend, cfg: cfg}
}

// RunHourly deletes stored image files older than images_retention.
func (e *Engine) RunHourly() error {
	if e.cfg.ImageDir == "" {
		return nil
	}
	cutoff := time.Now().Add(-e.cfg.ImagesRetention)
	entries, err := os.ReadDir(e.cfg.ImageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("retention: reading image dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(e.cfg.ImageDir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	log.Info().Int("removed", removed).Msg("retention: hourly image sweep")
	return nil
}

// RunEvery15Minutes deletes job records older than jobs_retention.
func (e *Engine) RunEvery15Minutes() error {
	cutoff := time.Now().Add(-e.cfg.JobsRetention)
	n, err := e.backend.PruneJobsOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("retention: pruning jobs: %w", err)
	}
	log.Info().Int64("removed", n).Msg("retention: job sweep")
	return nil
}

// RunDaily deletes fingerprint rows not seen within hashes_retention and
// prunes expired cache and idempotency-lock rows (the logs_retention window is enforced by the
// process's external log rotation, out of this module's scope per §1).
func (e *Engine) RunDaily() error {
	cutoff := time.Now().Add(-e.cfg.HashesRetention)
	n, err := e.backend.PruneFingerprintsOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("retention: pruning fingerprints: %w", err)
	}
	cacheCutoff := time.Now()
	cn, err := e.backend.PruneExpiredCache(cacheCutoff)
	if err != nil {
		return fmt.Errorf("retention: pruning cache: %w", err)
	}
	ln, err := e.backend.PruneExpiredIdemLocks(cacheCutoff)
	if err != nil {
		return fmt.Errorf("retention: pruning idem locks: %w", err)
	}
	log.Info().Int64("fingerprints_removed", n).Int64("cache_removed", cn).Int64("locks_removed", ln).
		Msg("retention: daily sweep")
	return nil
}

// RunWeekly trims metric series older than metrics_retention. Metric
// series storage is external to this module's core scope (§1); this
// records the sweep boundary for callers that do own a metrics store.
func (e *Engine) RunWeekly() time.Time {
	cutoff := time.Now().Add(-e.cfg.MetricsRetention)
	log.Info().Time("cutoff", cutoff).Msg("retention: weekly metrics trim boundary")
	return cutoff
}

// ExportBundle is the structured archive returned by Export.
type ExportBundle struct {
	Principal string       `json:"principal"`
	Jobs      []*store.Job `json:"jobs"`
	ExportedAt time.Time   `json:"exported_at"`
}

// Export collects every job record indexed under principal and returns a
// structured archive (spec §4.14's GDPR export path).
func (e *Engine) Export(principal string) (*ExportBundle, error) {
	jobs, err := e.backend.ListJobsByPrincipal(principal, 0)
	if err != nil {
		return nil, fmt.Errorf("retention: export: %w", err)
	}
	return &ExportBundle{Principal: principal, Jobs: jobs, ExportedAt: time.Now().UTC()}, nil
}

// ExportJSON is Export with its result pre-encoded for direct HTTP
// response bodies.
func (e *Engine) ExportJSON(principal string) ([]byte, error) {
	bundle, err := e.Export(principal)
	if err != nil {
		return nil, err
	}
	return json.Marshal(bundle)
}

// Erase deletes every record matching principal and reports the count of
// keys removed (spec §4.14's GDPR erasure path).
func (e *Engine) Erase(principal string) (int64, error) {
	n, err := e.backend.DeleteByPrincipal(principal)
	if err != nil {
		return 0, fmt.Errorf("retention: erase: %w", err)
	}
	return n, nil
}

// Identifier classifies an identifier string as either a job id (UUID) or
// a fingerprint (64-hex digest), per spec §6's retention API contract.
type Identifier int

const (
	IdentifierUnknown Identifier = iota
	IdentifierJob
	IdentifierFingerprint
)

// ClassifyIdentifier implements the §6 retention-API identifier contract.
func ClassifyIdentifier(id string) Identifier {
	if len(id) == 36 && isUUIDShape(id) {
		return IdentifierJob
	}
	if len(id) == 64 && isHex(id) {
		return IdentifierFingerprint
	}
	return IdentifierUnknown
}

func isUUIDShape(s string) bool {
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			if !isHexRune(r) {
				return false
			}
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		if !isHexRune(r) {
			return false
		}
	}
	return true
}

// DeleteIdentifier implements spec §6's `DELETE data/<identifier>`: id is
// classified as a job or a fingerprint and the matching record is purged.
func (e *Engine) DeleteIdentifier(id string) (Identifier, int64, error) {
	switch ClassifyIdentifier(id) {
	case IdentifierJob:
		n, err := e.backend.DeleteJob(id)
		if err != nil {
			return IdentifierJob, 0, fmt.Errorf("retention: delete job: %w", err)
		}
		return IdentifierJob, n, nil
	case IdentifierFingerprint:
		n, err := e.backend.DeleteFingerprint(id)
		if err != nil {
			return IdentifierFingerprint, 0, fmt.Errorf("retention: delete fingerprint: %w", err)
		}
		return IdentifierFingerprint, n, nil
	default:
		return IdentifierUnknown, 0, fmt.Errorf("retention: %q is neither a job id nor a fingerprint", id)
	}
}

func isHexRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
