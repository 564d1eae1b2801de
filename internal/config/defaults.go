package config

// DefaultPort is the default port for the core HTTP surface.
const DefaultPort = 7960

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.screen2deck"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "screen2deck.toml"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
const DefaultWriteTimeout = 60

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxImageMiB is the default maximum accepted upload size in mebibytes (§4.3/§4.4).
const DefaultMaxImageMiB = 15

// DefaultMaxLongEdgePx is the default resize target for the long edge (§4.4).
const DefaultMaxLongEdgePx = 1500

// DefaultPrincipalHeader is the header the core trusts for the caller identity.
const DefaultPrincipalHeader = "X-Principal-ID"

// DefaultEngine is the default OCR engine identifier.
const DefaultEngine = "tesseract"

// DefaultMinSpanConfidence is the default per-span acceptance threshold (§4.5/§4.6).
const DefaultMinSpanConfidence = 0.62

// DefaultMinQuantityLines is the default minimum recognized quantity lines
// before the best-of scorer accepts a variant (§4.5).
const DefaultMinQuantityLines = 10

// DefaultFuzzyTopK is the default number of candidates returned by fuzzy resolution (§4.2).
const DefaultFuzzyTopK = 5

// DefaultCatalogueSnapshot is the default catalogue snapshot file name.
const DefaultCatalogueSnapshot = "catalogue.sqlite"

// DefaultRemoteCallTimeoutSec is the default timeout for online catalogue calls.
const DefaultRemoteCallTimeoutSec = 5

// DefaultRemoteMinIntervalMs is the default minimum interval between online
// catalogue calls (§4.2 rate gate).
const DefaultRemoteMinIntervalMs = 100

// DefaultVisionMinConf is the default resolution-band confidence floor below
// which Vision fallback may trigger (§4.6).
const DefaultVisionMinConf = 0.70

// DefaultVisionMinLines is the default resolution-band line-count floor.
const DefaultVisionMinLines = 8

// DefaultCBFailureThreshold is the default number of qualifying failures
// before the Vision fallback gate opens.
const DefaultCBFailureThreshold = 5

// DefaultCBResetTimeoutSec is the default half-open probe delay in seconds.
const DefaultCBResetTimeoutSec = 60

// DefaultMonitoringWindowSec is the default sliding window over which the
// fallback rate is computed.
const DefaultMonitoringWindowSec = 300

// DefaultMaxFallbackRate is the default ceiling on the fraction of jobs that
// may use Vision fallback within the monitoring window.
const DefaultMaxFallbackRate = 0.30

// DefaultRateLimitPerMinute is the default sustained request rate per principal/address.
const DefaultRateLimitPerMinute = 30

// DefaultRateLimitBurstPer5Sec is the default short burst allowance (§4.15).
const DefaultRateLimitBurstPer5Sec = 10

// DefaultIdempotencyLockTTLSec is the default TTL on the idempotency lock row (§4.12).
const DefaultIdempotencyLockTTLSec = 30

// DefaultIdempotencyBlockWaitSec is the default bounded wait for a concurrent
// idempotent submission before proceeding without the lock.
const DefaultIdempotencyBlockWaitSec = 5

// DefaultRetentionImagesHours is the default retention for raw/preprocessed images (§4.14).
const DefaultRetentionImagesHours = 24

// DefaultRetentionJobsHours is the default retention for job records (§4.14).
const DefaultRetentionJobsHours = 72

// DefaultRetentionHashesDays is the default retention for fingerprint/idempotency rows (§4.14).
const DefaultRetentionHashesDays = 30

// DefaultRetentionLogsDays is the default retention for application logs (§4.14).
const DefaultRetentionLogsDays = 14

// DefaultRetentionMetricsDays is the default retention for aggregated metrics (§4.14).
const DefaultRetentionMetricsDays = 90

// DefaultRetryMaxAttempts is the default maximum number of retry attempts for remote collaborators.
const DefaultRetryMaxAttempts = 3

// DefaultRetryBaseDelayMs is the default base delay for exponential backoff in milliseconds.
const DefaultRetryBaseDelayMs = 250

// DefaultRetryMaxDelayMs is the default maximum delay for exponential backoff in milliseconds.
const DefaultRetryMaxDelayMs = 5000

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "stdout"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "screen2deck"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// DefaultMetricsRetentionDays is the default metrics retention in days.
const DefaultMetricsRetentionDays = 90

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidEngines lists the allowed OCR engine identifiers.
var ValidEngines = []string{"tesseract", "offline"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          DefaultPort,
			LogLevel:      DefaultLogLevel,
			DataDir:       DefaultDataDir,
			TLSEnabled:    false,
			CertFile:      "",
			KeyFile:       "",
			ReadTimeout:   DefaultReadTimeout,
			WriteTimeout:  DefaultWriteTimeout,
			IdleTimeout:   DefaultIdleTimeout,
			MaxImageMiB:   DefaultMaxImageMiB,
			MaxLongEdgePx: DefaultMaxLongEdgePx,
		},
		Auth: AuthConfig{
			Enabled:      false,
			PrincipalHdr: DefaultPrincipalHeader,
		},
		Pipeline: PipelineConfig{
			Engine:                DefaultEngine,
			Languages:             []string{"en"},
			MinSpanConfidence:     DefaultMinSpanConfidence,
			MinQuantityLines:      DefaultMinQuantityLines,
			FuzzyTopK:             DefaultFuzzyTopK,
			AlwaysVerifyCatalogue: false,
			VisionFallbackEnabled: false,
			Preprocess: PreprocessConfig{
				Denoise:  true,
				Binarize: true,
				Sharpen:  true,
				Superres: false,
			},
			CatalogueSnapshot: DefaultCatalogueSnapshot,
		},
		Catalogue: CatalogueConfig{
			SnapshotPath:         DefaultCatalogueSnapshot,
			OnlineEnabled:        false,
			RemoteCallTimeoutSec: DefaultRemoteCallTimeoutSec,
			RemoteMinIntervalMs:  DefaultRemoteMinIntervalMs,
			APIKeyRef:            "keyring://screen2deck/catalogue",
		},
		Vision: VisionConfig{
			Enabled:             false,
			MinConf:             DefaultVisionMinConf,
			MinLines:            DefaultVisionMinLines,
			FailureThreshold:    DefaultCBFailureThreshold,
			RecoveryTimeoutSec:  DefaultCBResetTimeoutSec,
			MonitoringWindowSec: DefaultMonitoringWindowSec,
			MaxFallbackRate:     DefaultMaxFallbackRate,
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			PerMinute:    DefaultRateLimitPerMinute,
			BurstPer5Sec: DefaultRateLimitBurstPer5Sec,
		},
		Idempotency: IdempotencyConfig{
			LockTTLSec:   DefaultIdempotencyLockTTLSec,
			BlockWaitSec: DefaultIdempotencyBlockWaitSec,
		},
		Retention: RetentionConfig{
			ImagesHours: DefaultRetentionImagesHours,
			JobsHours:   DefaultRetentionJobsHours,
			HashesDays:  DefaultRetentionHashesDays,
			LogsDays:    DefaultRetentionLogsDays,
			MetricsDays: DefaultRetentionMetricsDays,
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts: DefaultRetryMaxAttempts,
			RetryBaseDelayMs: DefaultRetryBaseDelayMs,
			RetryMaxDelayMs:  DefaultRetryMaxDelayMs,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Metrics: MetricsConfig{
			RetentionDays: DefaultMetricsRetentionDays,
		},
	}
}
