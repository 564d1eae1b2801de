package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.DataDir = "/tmp/test"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("validate valid config: %v", err)
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for port 70000")
	}
	if !strings.Contains(err.Error(), "server.port") {
		t.Errorf("error should mention server.port: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "verbose"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level: %v", err)
	}
}

func TestValidate_EmptyDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DataDir = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty data_dir")
	}
}

func TestValidate_TLS_MissingCert(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLSEnabled = true
	cfg.Server.CertFile = ""
	cfg.Server.KeyFile = "/path/to/key.pem"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing cert_file")
	}
	if !strings.Contains(err.Error(), "cert_file") {
		t.Errorf("error should mention cert_file: %v", err)
	}
}

func TestValidate_TLS_MissingKey(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLSEnabled = true
	cfg.Server.CertFile = "/path/to/cert.pem"
	cfg.Server.KeyFile = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing key_file")
	}
}

func TestValidate_NegativeReadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative read_timeout")
	}
}

func TestValidate_BadMaxImageMiB(t *testing.T) {
	cfg := validConfig()
	cfg.Server.MaxImageMiB = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for max_image_mib = 0")
	}
}

func TestValidate_AuthHeaderRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.PrincipalHdr = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for enabled auth with no principal header")
	}
}

func TestValidate_BadEngine(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Engine = "ghost-ocr"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid engine")
	}
}

func TestValidate_NoLanguages(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Languages = nil

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty languages")
	}
}

func TestValidate_ConfidenceOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.MinSpanConfidence = 1.5

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for min_span_confidence > 1")
	}
}

func TestValidate_BadFuzzyTopK(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.FuzzyTopK = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for fuzzy_top_k = 0")
	}
}

func TestValidate_EmptyCatalogueSnapshot(t *testing.T) {
	cfg := validConfig()
	cfg.Catalogue.SnapshotPath = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty snapshot_path")
	}
}

func TestValidate_VisionConfidenceOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Vision.MinConf = -0.1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative vision.min_conf")
	}
}

func TestValidate_VisionZeroFailureThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Vision.FailureThreshold = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for vision.failure_threshold = 0")
	}
}

func TestValidate_VisionZeroRecoveryTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Vision.RecoveryTimeoutSec = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for vision.recovery_timeout_sec = 0")
	}
}

func TestValidate_MaxFallbackRateOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Vision.MaxFallbackRate = 1.5

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for vision.max_fallback_rate > 1")
	}
}

func TestValidate_NegativeRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.PerMinute = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative rate_limit.per_minute")
	}
}

func TestValidate_ZeroIdempotencyLockTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Idempotency.LockTTLSec = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for idempotency.lock_ttl_sec = 0")
	}
}

func TestValidate_NegativeRetentionHours(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.ImagesHours = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative retention.images_hours")
	}
}

func TestValidate_Resilience_NegativeRetryAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.Resilience.RetryMaxAttempts = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative retry_max_attempts")
	}
}

func TestValidate_MetricsRetentionZero(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.RetentionDays = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for retention_days = 0")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Server.LogLevel = "bad"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "server.port") || !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention multiple fields: %v", err)
	}
}

func TestIsValidEnum(t *testing.T) {
	if !isValidEnum("INFO", ValidLogLevels) {
		t.Error("INFO should be valid (case-insensitive)")
	}
	if isValidEnum("verbose", ValidLogLevels) {
		t.Error("verbose should not be valid")
	}
}
