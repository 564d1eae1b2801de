package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for the screen2deck core.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"      toml:"server"`
	Auth        AuthConfig        `mapstructure:"auth"        toml:"auth"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"    toml:"pipeline"`
	Catalogue   CatalogueConfig   `mapstructure:"catalogue"   toml:"catalogue"`
	Vision      VisionConfig      `mapstructure:"vision"      toml:"vision"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"  toml:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency" toml:"idempotency"`
	Retention   RetentionConfig   `mapstructure:"retention"   toml:"retention"`
	Resilience  ResilienceConfig  `mapstructure:"resilience"  toml:"resilience"`
	Tracing     TracingConfig     `mapstructure:"tracing"     toml:"tracing"`
	Metrics     MetricsConfig     `mapstructure:"metrics"     toml:"metrics"`
}

// ServerConfig holds the core HTTP server settings.
type ServerConfig struct {
	Port            int    `mapstructure:"port"              toml:"port"`
	LogLevel        string `mapstructure:"log_level"         toml:"log_level"`
	DataDir         string `mapstructure:"data_dir"          toml:"data_dir"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"       toml:"tls_enabled"`
	CertFile        string `mapstructure:"cert_file"         toml:"cert_file"`
	KeyFile         string `mapstructure:"key_file"          toml:"key_file"`
	ReadTimeout     int    `mapstructure:"read_timeout"      toml:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"     toml:"write_timeout"`
	IdleTimeout     int    `mapstructure:"idle_timeout"      toml:"idle_timeout"`
	MaxImageMiB     int    `mapstructure:"max_image_mib"     toml:"max_image_mib"`
	MaxLongEdgePx   int    `mapstructure:"max_long_edge_px"  toml:"max_long_edge_px"`
}

// AuthConfig holds the settings for the already-verified principal header
// the core trusts. Token issuance itself lives outside this module (§1).
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"         toml:"enabled"`
	PrincipalHdr  string `mapstructure:"principal_header" toml:"principal_header"`
}

// PreprocessConfig toggles the C4 preprocessing variants.
type PreprocessConfig struct {
	Denoise  bool `mapstructure:"denoise"  toml:"denoise"`
	Binarize bool `mapstructure:"binarize" toml:"binarize"`
	Sharpen  bool `mapstructure:"sharpen"  toml:"sharpen"`
	Superres bool `mapstructure:"superres" toml:"superres"`
}

// PipelineConfig is the recognized-options record from spec §3. It is also
// canonicalized (see internal/fingerprint) to compute idempotency keys, so
// every field that affects pipeline output MUST be represented here.
type PipelineConfig struct {
	Engine                string           `mapstructure:"engine"                  toml:"engine"`
	Languages              []string         `mapstructure:"languages"               toml:"languages"`
	MinSpanConfidence      float64          `mapstructure:"min_span_confidence"     toml:"min_span_confidence"`
	MinQuantityLines       int              `mapstructure:"min_quantity_lines"      toml:"min_quantity_lines"`
	FuzzyTopK              int              `mapstructure:"fuzzy_top_k"             toml:"fuzzy_top_k"`
	AlwaysVerifyCatalogue  bool             `mapstructure:"always_verify_catalogue" toml:"always_verify_catalogue"`
	VisionFallbackEnabled  bool             `mapstructure:"vision_fallback_enabled" toml:"vision_fallback_enabled"`
	Preprocess             PreprocessConfig `mapstructure:"preprocess"              toml:"preprocess"`
	CatalogueSnapshot      string           `mapstructure:"catalogue_snapshot"      toml:"catalogue_snapshot"`
}

// CatalogueConfig controls the offline/online card catalogue (C2).
type CatalogueConfig struct {
	SnapshotPath        string `mapstructure:"snapshot_path"          toml:"snapshot_path"`
	OnlineEnabled       bool   `mapstructure:"online_enabled"         toml:"online_enabled"`
	RemoteCallTimeoutSec int   `mapstructure:"remote_call_timeout_sec" toml:"remote_call_timeout_sec"`
	RemoteMinIntervalMs int    `mapstructure:"remote_min_interval_ms"  toml:"remote_min_interval_ms"`
	APIKeyRef           string `mapstructure:"api_key_ref"            toml:"api_key_ref"`
}

// VisionConfig controls the Vision fallback gate (C6).
type VisionConfig struct {
	Enabled             bool    `mapstructure:"enabled"               toml:"enabled"`
	MinConf             float64 `mapstructure:"min_conf"              toml:"min_conf"`
	MinLines            int     `mapstructure:"min_lines"             toml:"min_lines"`
	FailureThreshold    int     `mapstructure:"failure_threshold"     toml:"failure_threshold"`
	RecoveryTimeoutSec  int     `mapstructure:"recovery_timeout_sec"  toml:"recovery_timeout_sec"`
	MonitoringWindowSec int     `mapstructure:"monitoring_window_sec" toml:"monitoring_window_sec"`
	MaxFallbackRate     float64 `mapstructure:"max_fallback_rate"     toml:"max_fallback_rate"`
}

// RateLimitConfig controls the per-principal-or-address sliding window (C15).
type RateLimitConfig struct {
	Enabled      bool `mapstructure:"enabled"       toml:"enabled"`
	PerMinute    int  `mapstructure:"per_minute"    toml:"per_minute"`
	BurstPer5Sec int  `mapstructure:"burst_per_5s"  toml:"burst_per_5s"`
}

// IdempotencyConfig controls the C12 lock/result protocol.
type IdempotencyConfig struct {
	LockTTLSec    int `mapstructure:"lock_ttl_sec"    toml:"lock_ttl_sec"`
	BlockWaitSec  int `mapstructure:"block_wait_sec"  toml:"block_wait_sec"`
}

// RetentionConfig controls the C14 retention engine cadences.
type RetentionConfig struct {
	ImagesHours int `mapstructure:"images_hours" toml:"images_hours"`
	JobsHours   int `mapstructure:"jobs_hours"   toml:"jobs_hours"`
	HashesDays  int `mapstructure:"hashes_days"  toml:"hashes_days"`
	LogsDays    int `mapstructure:"logs_days"    toml:"logs_days"`
	MetricsDays int `mapstructure:"metrics_days" toml:"metrics_days"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "screen2deck"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// MetricsConfig controls metrics retention.
type MetricsConfig struct {
	RetentionDays int `mapstructure:"retention_days" toml:"retention_days"`
}

// ResilienceConfig controls retry/circuit-breaker settings for remote
// collaborators (catalogue online resolve, Vision fallback).
type ResilienceConfig struct {
	RetryMaxAttempts int `mapstructure:"retry_max_attempts"  toml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" toml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms"  toml:"retry_max_delay_ms"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (SCREEN2DECK_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.screen2deck/screen2deck.toml
//  4. ./screen2deck.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setViperDefaults(v)

	v.SetEnvPrefix("SCREEN2DECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".screen2deck"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("screen2deck")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.screen2deck/screen2deck.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".screen2deck")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file, decodes it over the built-in
// defaults (not over the current config), validates it, and makes it the
// current config.
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_image_mib", d.Server.MaxImageMiB)
	v.SetDefault("server.max_long_edge_px", d.Server.MaxLongEdgePx)

	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.principal_header", d.Auth.PrincipalHdr)

	v.SetDefault("pipeline.engine", d.Pipeline.Engine)
	v.SetDefault("pipeline.languages", d.Pipeline.Languages)
	v.SetDefault("pipeline.min_span_confidence", d.Pipeline.MinSpanConfidence)
	v.SetDefault("pipeline.min_quantity_lines", d.Pipeline.MinQuantityLines)
	v.SetDefault("pipeline.fuzzy_top_k", d.Pipeline.FuzzyTopK)
	v.SetDefault("pipeline.always_verify_catalogue", d.Pipeline.AlwaysVerifyCatalogue)
	v.SetDefault("pipeline.vision_fallback_enabled", d.Pipeline.VisionFallbackEnabled)
	v.SetDefault("pipeline.preprocess.denoise", d.Pipeline.Preprocess.Denoise)
	v.SetDefault("pipeline.preprocess.binarize", d.Pipeline.Preprocess.Binarize)
	v.SetDefault("pipeline.preprocess.sharpen", d.Pipeline.Preprocess.Sharpen)
	v.SetDefault("pipeline.preprocess.superres", d.Pipeline.Preprocess.Superres)
	v.SetDefault("pipeline.catalogue_snapshot", d.Pipeline.CatalogueSnapshot)

	v.SetDefault("catalogue.snapshot_path", d.Catalogue.SnapshotPath)
	v.SetDefault("catalogue.online_enabled", d.Catalogue.OnlineEnabled)
	v.SetDefault("catalogue.remote_call_timeout_sec", d.Catalogue.RemoteCallTimeoutSec)
	v.SetDefault("catalogue.remote_min_interval_ms", d.Catalogue.RemoteMinIntervalMs)
	v.SetDefault("catalogue.api_key_ref", d.Catalogue.APIKeyRef)

	v.SetDefault("vision.enabled", d.Vision.Enabled)
	v.SetDefault("vision.min_conf", d.Vision.MinConf)
	v.SetDefault("vision.min_lines", d.Vision.MinLines)
	v.SetDefault("vision.failure_threshold", d.Vision.FailureThreshold)
	v.SetDefault("vision.recovery_timeout_sec", d.Vision.RecoveryTimeoutSec)
	v.SetDefault("vision.monitoring_window_sec", d.Vision.MonitoringWindowSec)
	v.SetDefault("vision.max_fallback_rate", d.Vision.MaxFallbackRate)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.per_minute", d.RateLimit.PerMinute)
	v.SetDefault("rate_limit.burst_per_5s", d.RateLimit.BurstPer5Sec)

	v.SetDefault("idempotency.lock_ttl_sec", d.Idempotency.LockTTLSec)
	v.SetDefault("idempotency.block_wait_sec", d.Idempotency.BlockWaitSec)

	v.SetDefault("retention.images_hours", d.Retention.ImagesHours)
	v.SetDefault("retention.jobs_hours", d.Retention.JobsHours)
	v.SetDefault("retention.hashes_days", d.Retention.HashesDays)
	v.SetDefault("retention.logs_days", d.Retention.LogsDays)
	v.SetDefault("retention.metrics_days", d.Retention.MetricsDays)

	v.SetDefault("resilience.retry_max_attempts", d.Resilience.RetryMaxAttempts)
	v.SetDefault("resilience.retry_base_delay_ms", d.Resilience.RetryBaseDelayMs)
	v.SetDefault("resilience.retry_max_delay_ms", d.Resilience.RetryMaxDelayMs)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	v.SetDefault("metrics.retention_days", d.Metrics.RetentionDays)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// CanonicalJSON returns a byte-stable JSON representation of the pipeline
// config: sorted keys and fixed numeric precision, so that two semantically
// equal configs always hash to the same idempotency key (spec §4.1).
func (p PipelineConfig) CanonicalJSON() []byte {
	langs := append([]string(nil), p.Languages...)

	var b strings.Builder
	b.WriteByte('{')
	fmt.Fprintf(&b, "\"always_verify_catalogue\":%t,", p.AlwaysVerifyCatalogue)
	fmt.Fprintf(&b, "\"catalogue_snapshot\":%q,", p.CatalogueSnapshot)
	fmt.Fprintf(&b, "\"engine\":%q,", p.Engine)
	fmt.Fprintf(&b, "\"fuzzy_top_k\":%d,", p.FuzzyTopK)
	fmt.Fprintf(&b, "\"languages\":[")
	for i, l := range langs {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q", l)
	}
	b.WriteString("],")
	fmt.Fprintf(&b, "\"min_quantity_lines\":%d,", p.MinQuantityLines)
	fmt.Fprintf(&b, "\"min_span_confidence\":%.4f,", p.MinSpanConfidence)
	fmt.Fprintf(&b, "\"preprocess\":{\"binarize\":%t,\"denoise\":%t,\"sharpen\":%t,\"superres\":%t},",
		p.Preprocess.Binarize, p.Preprocess.Denoise, p.Preprocess.Sharpen, p.Preprocess.Superres)
	fmt.Fprintf(&b, "\"vision_fallback_enabled\":%t", p.VisionFallbackEnabled)
	b.WriteByte('}')
	return []byte(b.String())
}
