package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.TLSEnabled {
		if cfg.Server.CertFile == "" {
			errs = append(errs, "server.cert_file must be set when tls_enabled is true")
		}
		if cfg.Server.KeyFile == "" {
			errs = append(errs, "server.key_file must be set when tls_enabled is true")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxImageMiB < 1 {
		errs = append(errs, fmt.Sprintf("server.max_image_mib must be at least 1, got %d", cfg.Server.MaxImageMiB))
	}
	if cfg.Server.MaxLongEdgePx < 1 {
		errs = append(errs, fmt.Sprintf("server.max_long_edge_px must be at least 1, got %d", cfg.Server.MaxLongEdgePx))
	}

	// Auth validation
	if cfg.Auth.Enabled && cfg.Auth.PrincipalHdr == "" {
		errs = append(errs, "auth.principal_header must be set when auth.enabled is true")
	}

	// Pipeline validation
	if !isValidEnum(cfg.Pipeline.Engine, ValidEngines) {
		errs = append(errs, fmt.Sprintf("pipeline.engine must be one of %v, got %q", ValidEngines, cfg.Pipeline.Engine))
	}
	if len(cfg.Pipeline.Languages) == 0 {
		errs = append(errs, "pipeline.languages must have at least one entry")
	}
	if cfg.Pipeline.MinSpanConfidence < 0 || cfg.Pipeline.MinSpanConfidence > 1 {
		errs = append(errs, fmt.Sprintf("pipeline.min_span_confidence must be between 0 and 1, got %f", cfg.Pipeline.MinSpanConfidence))
	}
	if cfg.Pipeline.MinQuantityLines < 0 {
		errs = append(errs, fmt.Sprintf("pipeline.min_quantity_lines must be non-negative, got %d", cfg.Pipeline.MinQuantityLines))
	}
	if cfg.Pipeline.FuzzyTopK < 1 {
		errs = append(errs, fmt.Sprintf("pipeline.fuzzy_top_k must be at least 1, got %d", cfg.Pipeline.FuzzyTopK))
	}

	// Catalogue validation
	if cfg.Catalogue.SnapshotPath == "" {
		errs = append(errs, "catalogue.snapshot_path must not be empty")
	}
	if cfg.Catalogue.RemoteCallTimeoutSec < 0 {
		errs = append(errs, fmt.Sprintf("catalogue.remote_call_timeout_sec must be non-negative, got %d", cfg.Catalogue.RemoteCallTimeoutSec))
	}
	if cfg.Catalogue.RemoteMinIntervalMs < 0 {
		errs = append(errs, fmt.Sprintf("catalogue.remote_min_interval_ms must be non-negative, got %d", cfg.Catalogue.RemoteMinIntervalMs))
	}

	// Vision validation
	if cfg.Vision.MinConf < 0 || cfg.Vision.MinConf > 1 {
		errs = append(errs, fmt.Sprintf("vision.min_conf must be between 0 and 1, got %f", cfg.Vision.MinConf))
	}
	if cfg.Vision.MinLines < 0 {
		errs = append(errs, fmt.Sprintf("vision.min_lines must be non-negative, got %d", cfg.Vision.MinLines))
	}
	if cfg.Vision.FailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("vision.failure_threshold must be at least 1, got %d", cfg.Vision.FailureThreshold))
	}
	if cfg.Vision.RecoveryTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("vision.recovery_timeout_sec must be positive, got %d", cfg.Vision.RecoveryTimeoutSec))
	}
	if cfg.Vision.MonitoringWindowSec <= 0 {
		errs = append(errs, fmt.Sprintf("vision.monitoring_window_sec must be positive, got %d", cfg.Vision.MonitoringWindowSec))
	}
	if cfg.Vision.MaxFallbackRate < 0 || cfg.Vision.MaxFallbackRate > 1 {
		errs = append(errs, fmt.Sprintf("vision.max_fallback_rate must be between 0 and 1, got %f", cfg.Vision.MaxFallbackRate))
	}

	// Rate limit validation
	if cfg.RateLimit.PerMinute < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.per_minute must be non-negative, got %d", cfg.RateLimit.PerMinute))
	}
	if cfg.RateLimit.BurstPer5Sec < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.burst_per_5s must be non-negative, got %d", cfg.RateLimit.BurstPer5Sec))
	}

	// Idempotency validation
	if cfg.Idempotency.LockTTLSec < 1 {
		errs = append(errs, fmt.Sprintf("idempotency.lock_ttl_sec must be at least 1, got %d", cfg.Idempotency.LockTTLSec))
	}
	if cfg.Idempotency.BlockWaitSec < 0 {
		errs = append(errs, fmt.Sprintf("idempotency.block_wait_sec must be non-negative, got %d", cfg.Idempotency.BlockWaitSec))
	}

	// Retention validation
	if cfg.Retention.ImagesHours < 0 {
		errs = append(errs, fmt.Sprintf("retention.images_hours must be non-negative, got %d", cfg.Retention.ImagesHours))
	}
	if cfg.Retention.JobsHours < 0 {
		errs = append(errs, fmt.Sprintf("retention.jobs_hours must be non-negative, got %d", cfg.Retention.JobsHours))
	}
	if cfg.Retention.HashesDays < 0 {
		errs = append(errs, fmt.Sprintf("retention.hashes_days must be non-negative, got %d", cfg.Retention.HashesDays))
	}
	if cfg.Retention.LogsDays < 0 {
		errs = append(errs, fmt.Sprintf("retention.logs_days must be non-negative, got %d", cfg.Retention.LogsDays))
	}
	if cfg.Retention.MetricsDays < 0 {
		errs = append(errs, fmt.Sprintf("retention.metrics_days must be non-negative, got %d", cfg.Retention.MetricsDays))
	}

	// Resilience validation
	if cfg.Resilience.RetryMaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_attempts must be non-negative, got %d", cfg.Resilience.RetryMaxAttempts))
	}
	if cfg.Resilience.RetryBaseDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_base_delay_ms must be non-negative, got %d", cfg.Resilience.RetryBaseDelayMs))
	}
	if cfg.Resilience.RetryMaxDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_delay_ms must be non-negative, got %d", cfg.Resilience.RetryMaxDelayMs))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	// Metrics validation
	if cfg.Metrics.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("metrics.retention_days must be at least 1, got %d", cfg.Metrics.RetentionDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
