package store

// SQL schema constants for all screen2deck tables.

const schemaJobs = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    progress REAL NOT NULL DEFAULT 0.0,
    fingerprint TEXT NOT NULL DEFAULT '',
    idempotency_key TEXT NOT NULL DEFAULT '',
    principal TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    result TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_fingerprint ON jobs(fingerprint);
CREATE INDEX IF NOT EXISTS idx_jobs_principal_created ON jobs(principal, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
`

const schemaCache = `
CREATE TABLE IF NOT EXISTS cache (
    layer TEXT NOT NULL,
    subkey TEXT NOT NULL,
    value BLOB NOT NULL,
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    hit_count INTEGER NOT NULL DEFAULT 0,
    last_hit TEXT,
    PRIMARY KEY (layer, subkey)
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires_at);
`

const schemaFingerprints = `
CREATE TABLE IF NOT EXISTS fingerprints (
    hash TEXT PRIMARY KEY,
    idempotency_key TEXT NOT NULL DEFAULT '',
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL,
    hit_count INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_idem ON fingerprints(idempotency_key);
`

const schemaIdemLocks = `
CREATE TABLE IF NOT EXISTS idem_locks (
    key TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    acquired_at TEXT NOT NULL,
    expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_idem_locks_expires ON idem_locks(expires_at);
`

const schemaCards = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    oracle_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    name_normalized TEXT NOT NULL,
    layout TEXT NOT NULL DEFAULT 'normal',
    faces TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_cards_name_normalized ON cards(name_normalized);
CREATE INDEX IF NOT EXISTS idx_cards_oracle_id ON cards(oracle_id);
`

const schemaCatalogueMetadata = `
CREATE TABLE IF NOT EXISTS catalogue_metadata (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    snapshot_version TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT ''
);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout.
var allSchemas = []string{
	schemaJobs,
	schemaCache,
	schemaFingerprints,
	schemaIdemLocks,
	schemaCards,
	schemaCatalogueMetadata,
	schemaMigrations,
}
