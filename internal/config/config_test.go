package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	// Load from a directory with no config file — should use defaults.
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.toml"))
	if err == nil {
		_ = cfg // viper may not error on a missing explicit path in all versions.
	}
}

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 9090
log_level = "debug"
data_dir = "` + dir + `"

[pipeline]
engine = "tesseract"
languages = ["en"]
min_span_confidence = 0.7
fuzzy_top_k = 3

[catalogue]
online_enabled = true
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Pipeline.FuzzyTopK != 3 {
		t.Errorf("FuzzyTopK: got %d, want 3", cfg.Pipeline.FuzzyTopK)
	}
	if !cfg.Catalogue.OnlineEnabled {
		t.Error("expected catalogue.online_enabled to be true")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 7960
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("SCREEN2DECK_SERVER_PORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8888 {
		t.Errorf("Port with env override: got %d, want 8888", cfg.Server.Port)
	}
}

func TestLoad_ValidationFailure_BadPort(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
port = 0
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestLoad_ValidationFailure_BadConfidence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad-conf.toml")

	content := `
[server]
port = 7777
log_level = "info"
data_dir = "` + dir + `"

[pipeline]
min_span_confidence = 1.5
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for out-of-range confidence")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Resilience.RetryMaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("RetryMaxAttempts: got %d, want %d", cfg.Resilience.RetryMaxAttempts, DefaultRetryMaxAttempts)
	}
	if cfg.Pipeline.FuzzyTopK != DefaultFuzzyTopK {
		t.Errorf("FuzzyTopK: got %d, want %d", cfg.Pipeline.FuzzyTopK, DefaultFuzzyTopK)
	}
	if cfg.Retention.JobsHours != DefaultRetentionJobsHours {
		t.Errorf("JobsHours: got %d, want %d", cfg.Retention.JobsHours, DefaultRetentionJobsHours)
	}
}

func TestPipelineConfig_CanonicalJSON_Stable(t *testing.T) {
	a := DefaultConfig().Pipeline
	b := DefaultConfig().Pipeline
	b.Languages = append([]string{}, a.Languages...)

	if string(a.CanonicalJSON()) != string(b.CanonicalJSON()) {
		t.Error("CanonicalJSON is not stable across equal configs")
	}

	c := a
	c.FuzzyTopK = a.FuzzyTopK + 1
	if string(a.CanonicalJSON()) == string(c.CanonicalJSON()) {
		t.Error("CanonicalJSON did not change when FuzzyTopK changed")
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	// Reset to ensure clean state.
	loadedConfigFile.Store("")
	path := ConfigFilePath()
	if path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestExportConfig(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "exported.toml")

	cfg := DefaultConfig()
	set(cfg)

	if err := ExportConfig(exportPath); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Error("exported config is empty")
	}
}

func TestImportConfig(t *testing.T) {
	dir := t.TempDir()
	importPath := filepath.Join(dir, "import.toml")

	content := `
[server]
port = 9999
log_level = "warn"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(importPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := ImportConfig(importPath); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}

	cfg := Get()
	if cfg.Server.Port != 9999 {
		t.Errorf("Port after import: got %d, want 9999", cfg.Server.Port)
	}

	// Reset to default to not affect other tests.
	set(DefaultConfig())
}
