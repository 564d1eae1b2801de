package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gbordes77/screen2deck/internal/cache"
	"github.com/gbordes77/screen2deck/internal/catalogue"
	"github.com/gbordes77/screen2deck/internal/config"
	"github.com/gbordes77/screen2deck/internal/httpapi"
	"github.com/gbordes77/screen2deck/internal/idem"
	"github.com/gbordes77/screen2deck/internal/intake"
	"github.com/gbordes77/screen2deck/internal/jobstore"
	"github.com/gbordes77/screen2deck/internal/ocr"
	"github.com/gbordes77/screen2deck/internal/ocr/offline"
	"github.com/gbordes77/screen2deck/internal/orchestrator"
	"github.com/gbordes77/screen2deck/internal/parser"
	"github.com/gbordes77/screen2deck/internal/pipeline"
	"github.com/gbordes77/screen2deck/internal/progress"
	"github.com/gbordes77/screen2deck/internal/ratelimit"
	"github.com/gbordes77/screen2deck/internal/resolver"
	"github.com/gbordes77/screen2deck/internal/retention"
	"github.com/gbordes77/screen2deck/internal/router"
	"github.com/gbordes77/screen2deck/internal/store"
	"github.com/gbordes77/screen2deck/internal/tracing"
	"github.com/gbordes77/screen2deck/internal/vault"
	"github.com/gbordes77/screen2deck/internal/version"
	"github.com/gbordes77/screen2deck/internal/visionfallback"
)

// Run is the main daemon orchestrator. It initialises every core
// subsystem, starts the HTTP server, and blocks until a shutdown signal
// is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	// Always log to file.
	logPath := filepath.Join(dataDir, "screen2deck.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	// If foreground, also write to stdout with console formatting.
	if foreground {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "screen2deck").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("screen2deck starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("screen2deck is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	// 3. Open store.
	dbPath := filepath.Join(dataDir, "screen2deck.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	log.Info().Str("db_path", dbPath).Msg("store opened")

	// 4. Set up distributed tracing, if enabled.
	var tracingShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		serviceName := cfg.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "screen2deck"
		}
		shutdown, terr := tracing.Init(context.Background(), serviceName, version.Version,
			cfg.Tracing.Exporter, cfg.Tracing.Endpoint, cfg.Tracing.SampleRate, cfg.Tracing.Insecure)
		if terr != nil {
			log.Warn().Err(terr).Msg("failed to initialize tracing; continuing without it")
		} else {
			tracingShutdown = shutdown
		}
	}

	// 5. Write PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 6. Start config watcher.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				newLevel := parseLogLevel(newCfg.Server.LogLevel)
				zerolog.SetGlobalLevel(newLevel)
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 7. Start the retention engine's scheduled sweeps (C14). Images are
	// processed entirely in memory (see internal/intake) and never
	// written to disk, so the hourly image sweep is a standing no-op
	// until a future on-disk staging path exists.
	retentionCfg := retention.Config{
		ImagesRetention:  time.Duration(cfg.Retention.ImagesHours) * time.Hour,
		JobsRetention:    time.Duration(cfg.Retention.JobsHours) * time.Hour,
		HashesRetention:  time.Duration(cfg.Retention.HashesDays) * 24 * time.Hour,
		LogsRetention:    time.Duration(cfg.Retention.LogsDays) * 24 * time.Hour,
		MetricsRetention: time.Duration(cfg.Retention.MetricsDays) * 24 * time.Hour,
	}
	retentionEngine := retention.New(st, retentionCfg)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweepersDone := make(chan struct{})
	go func() {
		defer close(sweepersDone)
		runRetentionSweeps(sweepCtx, retentionEngine)
	}()

	// ---------------------------------------------------------------
	// 8. Wire up the core pipeline.
	// ---------------------------------------------------------------

	// 8a. Store adapters bridge *store.Store to the package-local
	// interfaces the cache, catalogue, and fingerprint recording need.
	fingerprintAdapter := store.NewFingerprintAdapter(st)
	cacheAdapter := store.NewCacheAdapter(st)
	catalogueAdapter := store.NewCatalogueAdapter(st)

	// 8b. Resolve the online catalogue provider's API key from the
	// vault, if the online fallback is enabled.
	v := vault.New()
	var apiKey string
	if cfg.Catalogue.OnlineEnabled && cfg.Catalogue.APIKeyRef != "" {
		key, kerr := v.ResolveKeyRef(cfg.Catalogue.APIKeyRef)
		if kerr != nil {
			log.Warn().Err(kerr).Msg("failed to resolve catalogue API key; online fallback disabled")
		} else {
			apiKey = key
		}
	}
	_ = apiKey // no online catalogue client ships in this deployment; see DESIGN.md

	cat, err := catalogue.New(catalogueAdapter, nil,
		4096,
		time.Duration(cfg.Catalogue.RemoteMinIntervalMs)*time.Millisecond,
		time.Duration(cfg.Catalogue.RemoteCallTimeoutSec)*time.Second,
	)
	if err != nil {
		return fmt.Errorf("creating catalogue store: %w", err)
	}
	if err := cat.Hydrate(); err != nil {
		log.Warn().Err(err).Msg("catalogue hydration failed; continuing with an empty in-memory index")
	}

	// 8c. Multi-layer cache (C3) and the idempotent-execution protocol
	// (C12) that runs on top of it.
	cch, err := cache.New(cacheAdapter, 4096)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	executor := idem.New(cch)

	// 8d. Job store (C11) and the progress fan-out channel (C13).
	jobs := jobstore.New(st)
	progressCh := progress.New(orchestrator.Lookup(jobs), progress.Options{})

	// 8e. OCR engine (C5) and the Vision fallback gate (C6). Engines are
	// registered by name and resolved through cfg.Pipeline.Engine; this
	// deployment ships only the deterministic offline provider, but a
	// real engine registers under its own name behind the same
	// ocr.Provider interface without any other wiring change.
	engineRegistry := router.NewRouter(map[string]*router.EngineConfig{
		"offline": {Name: "offline", Provider: offline.New(nil), Enabled: true, Priority: 1},
	}, "offline", false)
	engine, err := engineRegistry.Resolve(cfg.Pipeline.Engine)
	if err != nil {
		return fmt.Errorf("resolving OCR engine %q: %w", cfg.Pipeline.Engine, err)
	}
	ocrProvider := engine.Provider
	gate := visionfallback.New(visionfallback.Config{
		Enabled:          cfg.Vision.Enabled,
		FailureThreshold: cfg.Vision.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Vision.RecoveryTimeoutSec) * time.Second,
		MonitoringWindow: time.Duration(cfg.Vision.MonitoringWindowSec) * time.Second,
		MaxFallbackRate:  cfg.Vision.MaxFallbackRate,
		Bands: []visionfallback.Band{
			{Name: "default", MaxPixels: 1 << 30, MinConf: cfg.Vision.MinConf, MinLines: cfg.Vision.MinLines},
		},
	})

	// 8f. Resolver (C8) over the catalogue and cache.
	res := resolver.New(cat, cch)

	// 8g. The 5-stage pipeline chain (C4-C9).
	chain := pipeline.NewChain(
		pipeline.PreprocessStage{},
		pipeline.OCRStage{
			Provider: ocrProvider,
			Gate:     gate,
			Opts: ocr.BestOfOptions{
				SpanMinConfidence: cfg.Pipeline.MinSpanConfidence,
				EarlyStopConf:     0.97,
				EarlyStopSpans:    cfg.Pipeline.MinQuantityLines,
			},
		},
		pipeline.ParseStage{Mode: parser.Combined},
		pipeline.ResolveStage{Resolver: res},
		pipeline.RulesStage{},
	)

	// 8h. The orchestrator (C1) ties the job store, idempotent
	// execution, progress channel, and pipeline chain together.
	maxConcurrentJobs := 4
	intakeOpts := intake.Options{MaxBytes: cfg.Server.MaxImageMiB << 20}
	orch := orchestrator.New(jobs, executor, progressCh, chain, cfg.Pipeline, intakeOpts, maxConcurrentJobs, fingerprintAdapter)

	// 8i. Rate limiter (C15) and the HTTP server (the external
	// collaborator wiring the core onto the wire, see internal/httpapi).
	limiter := ratelimit.New()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Server.IdleTimeout) * time.Second

	srv := httpapi.NewServer(orch, retentionEngine, limiter, cfg.Auth, cfg.RateLimit, addr, readTimeout, writeTimeout, idleTimeout, cfg.Tracing.Enabled)

	// Channel to collect server startup errors.
	errCh := make(chan error, 1)

	go func() {
		if cfg.Server.TLSEnabled {
			log.Info().Str("addr", addr).Msg("http server starting (TLS)")
			if err := srv.StartTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		} else {
			log.Info().Str("addr", addr).Msg("http server starting")
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}
	}()

	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}
	log.Info().Int("port", cfg.Server.Port).Bool("tls", cfg.Server.TLSEnabled).Msg("screen2deck is ready")
	if foreground {
		fmt.Printf("\n  screen2deck is running!\n")
		fmt.Printf("  API: %s://localhost:%d\n\n", scheme, cfg.Server.Port)
	}

	// 9. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	// 10. Graceful shutdown with a 30-second timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	// 11. Clean up -- wait for background goroutines before closing the store.
	sweepCancel()
	<-sweepersDone
	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("tracing shutdown error")
		}
	}
	st.Close()
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("screen2deck stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("screen2deck does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		// Stale PID file; clean it up.
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("screen2deck is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to screen2deck (PID %d)\n", pid)

	// Wait briefly for the process to exit.
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a summary, probing
// the health endpoint directly rather than a dedicated stats API.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("screen2deck is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("screen2deck is running (PID %d)\n", pid)

	healthURL := fmt.Sprintf("http://localhost:%d/health/ready", cfg.Server.Port)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		fmt.Println("  (http server unreachable)")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Println("  status: ready")
	} else {
		fmt.Printf("  status: not ready (HTTP %d)\n", resp.StatusCode)
	}

	return nil
}

// runRetentionSweeps drives the retention engine's four fixed cadences
// (spec §4.14) on their own tickers until ctx is cancelled.
func runRetentionSweeps(ctx context.Context, engine *retention.Engine) {
	hourly := time.NewTicker(time.Hour)
	defer hourly.Stop()
	everyQuarterHour := time.NewTicker(15 * time.Minute)
	defer everyQuarterHour.Stop()
	daily := time.NewTicker(24 * time.Hour)
	defer daily.Stop()
	weekly := time.NewTicker(7 * 24 * time.Hour)
	defer weekly.Stop()

	runSweep := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("sweep", name).Msg("retention sweep: recovered from panic")
			}
		}()
		if err := fn(); err != nil {
			log.Error().Err(err).Str("sweep", name).Msg("retention sweep failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hourly.C:
			runSweep("hourly", engine.RunHourly)
		case <-everyQuarterHour.C:
			runSweep("15m", engine.RunEvery15Minutes)
		case <-daily.C:
			runSweep("daily", engine.RunDaily)
		case <-weekly.C:
			runSweep("weekly", func() error { engine.RunWeekly(); return nil })
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
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
