package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/olegkotsar/ftpreconcile/cache"
	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/metrics"
	"github.com/olegkotsar/ftpreconcile/processor"
	"github.com/olegkotsar/ftpreconcile/reconcile"
	"github.com/olegkotsar/ftpreconcile/source"
	"github.com/olegkotsar/ftpreconcile/transport"
)

var (
	configPath = flag.String("config", "", "YAML configuration file; environment variables are used when empty")
	dryRun     = flag.Bool("dry-run", false, "Report what would change without touching the remote server (env: DRY_RUN)")
	showHelp   = flag.BoolP("help", "h", false, "Show help message")

	logLevel  = flag.String("log-level", "", "Log level: silent, error, info, debug, verbose (env: LOG_LEVEL)")
	logFormat = flag.String("log-format", "", "Log format: text, json (env: LOG_FORMAT)")

	cachePath   = flag.String("cache-path", "", "Path to the manifest database (env: CACHE_BBOLT_PATH)")
	cacheNoSync = flag.Bool("cache-no-sync", false, "Disable fsync for the manifest database (env: CACHE_BBOLT_NO_SYNC)")

	sourceType    = flag.String("source-type", "", "Source type: local, s3 (env: SOURCE_TYPE)")
	localPath     = flag.String("local-path", "", "Directory to publish (env: LOCAL_PATH)")
	sourceMaxRPS  = flag.Int("source-max-rps", 0, "Max requests per second to the source, 0 = no limit (env: SOURCE_MAX_RPS)")
	s3Region      = flag.String("s3-region", "", "S3 region (env: S3_REGION)")
	s3Bucket      = flag.String("s3-bucket", "", "S3 bucket name (env: S3_BUCKET)")
	s3Prefix      = flag.String("s3-prefix", "", "Only publish keys under this prefix (env: S3_PREFIX)")
	s3AccessKey   = flag.String("s3-access-key", "", "S3 access key ID (env: S3_ACCESS_KEY_ID)")
	s3SecretKey   = flag.String("s3-secret-key", "", "S3 secret access key (env: S3_SECRET_ACCESS_KEY)")
	s3Endpoint    = flag.String("s3-endpoint", "", "S3 endpoint URL (env: S3_ENDPOINT)")
	remoteType    = flag.String("remote-type", "", "Remote type: ftp, sftp (env: REMOTE_TYPE)")
	workers       = flag.Int("workers", 0, "Parallel sessions, one connection each (env: REMOTE_WORKER_COUNT)")
	remoteTimeout = flag.Int("timeout", 0, "Deadline for a single remote call in seconds (env: REMOTE_TIMEOUT_SECONDS)")
	remoteRetries = flag.Int("retries", 0, "Attempts per published file (env: REMOTE_MAX_RETRIES)")
	ftpHost       = flag.String("ftp-host", "", "FTP server host (env: FTP_HOST)")
	ftpPort       = flag.Int("ftp-port", 0, "FTP server port (env: FTP_PORT)")
	ftpUsername   = flag.String("ftp-username", "", "FTP username (env: FTP_USERNAME)")
	ftpPassword   = flag.String("ftp-password", "", "FTP password (env: FTP_PASSWORD)")
	ftpBasePath   = flag.String("ftp-base-path", "", "Remote root directory (env: FTP_BASE_PATH)")
	ftpUseTLS     = flag.Bool("ftp-use-tls", false, "Use explicit FTPS (env: FTP_USE_TLS)")
	sftpHost      = flag.String("sftp-host", "", "SFTP server host (env: SFTP_HOST)")
	sftpPort      = flag.Int("sftp-port", 0, "SFTP server port (env: SFTP_PORT)")
	sftpUsername  = flag.String("sftp-username", "", "SFTP username (env: SFTP_USERNAME)")
	sftpPassword  = flag.String("sftp-password", "", "SFTP password (env: SFTP_PASSWORD)")
	sftpBasePath  = flag.String("sftp-base-path", "", "Remote root directory (env: SFTP_BASE_PATH)")
	knownHosts    = flag.String("sftp-known-hosts", "", "known_hosts file for host key checks (env: SFTP_KNOWN_HOSTS)")

	pollAttempts  = flag.Int("poll-attempts", 0, "Re-queries while waiting for the server to show a change (env: RECONCILE_POLL_ATTEMPTS)")
	pollInterval  = flag.Int("poll-interval-ms", 0, "Pause between re-queries (env: RECONCILE_POLL_INTERVAL_MS)")
	calibrate     = flag.Bool("calibrate", true, "Measure the server clock offset before the run (env: RECONCILE_CALIBRATE)")
	degradedClock = flag.Bool("degraded-clock", false, "Compare timestamps with offset zero when calibration is unavailable (env: RECONCILE_DEGRADED_CLOCK)")
	reuseOffsets  = flag.Bool("reuse-offsets", false, "Reuse the clock offset stored by an earlier run (env: RECONCILE_REUSE_OFFSETS)")

	layout           = flag.String("layout", "", "Remote layout: mirror, date (env: MIRROR_LAYOUT)")
	deleteExtraneous = flag.Bool("delete-extraneous", false, "Delete remote files whose source disappeared (env: MIRROR_DELETE_EXTRANEOUS)")
	pruneRemoteDirs  = flag.Bool("prune-remote-dirs", false, "Remove top-level remote directories holding no published file (env: MIRROR_PRUNE_REMOTE_DIRS)")
	checkFreshness   = flag.Bool("check-freshness", false, "Re-upload same-sized files that are older on the server (env: MIRROR_CHECK_FRESHNESS)")

	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090 (env: METRICS_ADDR)")
)

func main() {
	flag.Parse()

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, flag.CommandLine)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()

	if s, ok := log.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}

	switch {
	case errors.Is(err, context.Canceled):
		log.Info("Shutdown completed")
	case err != nil:
		log.Error("Mirror run failed: %v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	if *configPath != "" {
		return config.LoadFromFile(*configPath)
	}
	return config.LoadFromEnv()
}

func run(ctx context.Context, cfg *config.AppConfig, log logger.Logger) error {
	log.Info("Starting ftpreconcile: source=%s remote=%s (%s)", cfg.Source.SourceType, cfg.Remote.ServerIdentity(), cfg.Remote.RemoteType)

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, m, log)
		defer shutdown()
	}

	store, err := cache.CreateCache(&cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer func() {
		log.Debug("Closing manifest...")
		if err := store.Close(); err != nil {
			log.Error("Error closing manifest: %v", err)
		}
	}()
	log.Info("Manifest opened: type=%s", cfg.Cache.CacheType)

	src, err := source.CreateSource(&cfg.Source, log)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	clock := reconcile.NewClockBook(store, log, m)
	clock.Seed(cfg.Reconcile.KnownOffsets())
	server := cfg.Remote.ServerIdentity()
	if _, known := clock.Offset(server); !known && cfg.Reconcile.ReuseOffsets {
		if _, err := clock.LoadStored(server); err != nil {
			log.Warn("Could not read stored clock offset: %v", err)
		}
	}

	opts := reconcile.OptionsFromConfig(cfg)
	opts.Clock = clock
	opts.Logger = log
	opts.Metrics = m

	sessions := func() (*reconcile.Session, error) {
		t, err := transport.CreateTransport(&cfg.Remote)
		if err != nil {
			return nil, err
		}
		return reconcile.NewSession(t, opts), nil
	}

	if err := calibrateClock(ctx, cfg, clock, sessions, log); err != nil {
		return err
	}

	if cfg.DryRun {
		log.Info("Running in DRY-RUN mode - the remote server is not changed")
	}
	runner := processor.NewRunner(store, src, sessions, processor.Options{
		Mirror:     cfg.Mirror,
		Workers:    cfg.Remote.Common.WorkerCount,
		MaxRetries: cfg.Remote.Common.MaxRetries,
		DryRun:     cfg.DryRun,
		Logger:     log,
		Metrics:    m,
	})

	start := time.Now()
	if _, err := runner.Run(ctx); err != nil {
		return err
	}
	log.Info("Mirror run finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// calibrateClock measures the server's clock offset unless it is already
// known. Calibration uploads a marker file, so dry runs skip it.
func calibrateClock(ctx context.Context, cfg *config.AppConfig, clock *reconcile.ClockBook, sessions processor.SessionFactory, log logger.Logger) error {
	server := cfg.Remote.ServerIdentity()
	if _, known := clock.Offset(server); known || !cfg.Reconcile.Calibrate {
		return nil
	}
	if cfg.DryRun {
		log.Info("Dry-run: skipping clock calibration of %s", server)
		return nil
	}

	s, err := sessions()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer s.Close()

	off, err := clock.Calibrate(ctx, s, "")
	if err == nil {
		log.Info("Clock offset of %s: %s", server, off)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if cfg.Mirror.CheckFreshness && !cfg.Reconcile.DegradedClock {
		return err
	}
	log.Warn("Clock calibration failed, continuing without offset: %v", err)
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, log logger.Logger) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// applyFlags overrides cfg with every flag given on the command line.
func applyFlags(cfg *config.AppConfig, fs *flag.FlagSet) {
	set := fs.Changed

	if set("dry-run") {
		cfg.DryRun = *dryRun
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}

	// Logger
	if set("log-level") {
		cfg.Logger.Level = config.LogLevel(*logLevel)
	}
	if set("log-format") {
		cfg.Logger.Format = config.LogFormat(*logFormat)
	}

	// Cache
	if cfg.Cache.CacheType == "" {
		cfg.Cache.CacheType = config.CacheTypeBbolt
	}
	if cfg.Cache.Bbolt == nil {
		cfg.Cache.Bbolt = &config.BboltConfig{}
	}
	if set("cache-path") {
		cfg.Cache.Bbolt.Path = *cachePath
	}
	if set("cache-no-sync") {
		cfg.Cache.Bbolt.NoSync = *cacheNoSync
	}

	// Source
	if set("source-type") {
		cfg.Source.SourceType = config.SourceType(*sourceType)
	}
	if set("source-max-rps") {
		cfg.Source.Common.MaxRPS = *sourceMaxRPS
	}
	if set("local-path") {
		if cfg.Source.Local == nil {
			cfg.Source.Local = &config.LocalConfig{}
		}
		cfg.Source.Local.Path = *localPath
	}
	if set("s3-region") || set("s3-bucket") || set("s3-prefix") || set("s3-access-key") || set("s3-secret-key") || set("s3-endpoint") {
		if cfg.Source.S3 == nil {
			cfg.Source.S3 = &config.S3Config{}
		}
		overrideString(set, "s3-region", *s3Region, &cfg.Source.S3.Region)
		overrideString(set, "s3-bucket", *s3Bucket, &cfg.Source.S3.Bucket)
		overrideString(set, "s3-prefix", *s3Prefix, &cfg.Source.S3.Prefix)
		overrideString(set, "s3-access-key", *s3AccessKey, &cfg.Source.S3.AccessKeyID)
		overrideString(set, "s3-secret-key", *s3SecretKey, &cfg.Source.S3.SecretAccessKey)
		overrideString(set, "s3-endpoint", *s3Endpoint, &cfg.Source.S3.Endpoint)
	}

	// Remote
	if set("remote-type") {
		cfg.Remote.RemoteType = config.RemoteType(*remoteType)
	}
	if set("workers") {
		cfg.Remote.Common.WorkerCount = *workers
	}
	if set("timeout") {
		cfg.Remote.Common.TimeoutSeconds = *remoteTimeout
	}
	if set("retries") {
		cfg.Remote.Common.MaxRetries = *remoteRetries
	}
	if set("ftp-host") || set("ftp-port") || set("ftp-username") || set("ftp-password") || set("ftp-base-path") || set("ftp-use-tls") {
		if cfg.Remote.FTP == nil {
			cfg.Remote.FTP = &config.FTPConfig{}
		}
		overrideString(set, "ftp-host", *ftpHost, &cfg.Remote.FTP.Host)
		overrideString(set, "ftp-username", *ftpUsername, &cfg.Remote.FTP.Username)
		overrideString(set, "ftp-password", *ftpPassword, &cfg.Remote.FTP.Password)
		overrideString(set, "ftp-base-path", *ftpBasePath, &cfg.Remote.FTP.BasePath)
		if set("ftp-port") {
			cfg.Remote.FTP.Port = *ftpPort
		}
		if set("ftp-use-tls") {
			cfg.Remote.FTP.UseTLS = *ftpUseTLS
		}
	}
	if set("sftp-host") || set("sftp-port") || set("sftp-username") || set("sftp-password") || set("sftp-base-path") || set("sftp-known-hosts") {
		if cfg.Remote.SFTP == nil {
			cfg.Remote.SFTP = &config.SFTPConfig{}
		}
		overrideString(set, "sftp-host", *sftpHost, &cfg.Remote.SFTP.Host)
		overrideString(set, "sftp-username", *sftpUsername, &cfg.Remote.SFTP.Username)
		overrideString(set, "sftp-password", *sftpPassword, &cfg.Remote.SFTP.Password)
		overrideString(set, "sftp-base-path", *sftpBasePath, &cfg.Remote.SFTP.BasePath)
		overrideString(set, "sftp-known-hosts", *knownHosts, &cfg.Remote.SFTP.KnownHosts)
		if set("sftp-port") {
			cfg.Remote.SFTP.Port = *sftpPort
		}
	}

	// Reconcile
	if set("poll-attempts") {
		cfg.Reconcile.PollAttempts = *pollAttempts
	}
	if set("poll-interval-ms") {
		cfg.Reconcile.PollIntervalMs = *pollInterval
	}
	if set("calibrate") {
		cfg.Reconcile.Calibrate = *calibrate
	}
	if set("degraded-clock") {
		cfg.Reconcile.DegradedClock = *degradedClock
	}
	if set("reuse-offsets") {
		cfg.Reconcile.ReuseOffsets = *reuseOffsets
	}

	// Mirror
	if set("layout") {
		cfg.Mirror.Layout = config.Layout(*layout)
	}
	if set("delete-extraneous") {
		cfg.Mirror.DeleteExtraneous = *deleteExtraneous
	}
	if set("prune-remote-dirs") {
		cfg.Mirror.PruneRemoteDirs = *pruneRemoteDirs
	}
	if set("check-freshness") {
		cfg.Mirror.CheckFreshness = *checkFreshness
	}
}

func overrideString(set func(string) bool, name, value string, dst *string) {
	if set(name) {
		*dst = value
	}
}

func printHelp() {
	fmt.Println("ftpreconcile - publish a local directory or S3 bucket to an FTP/SFTP server")
	fmt.Println()
	fmt.Println("Usage: ftpreconcile [options]")
	fmt.Println()
	fmt.Println("Configuration comes from --config (YAML) or, without it, from environment variables.")
	fmt.Println("Command-line flags take precedence over both.")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  ftpreconcile --source-type=local --local-path=./site --ftp-host=ftp.example.com --ftp-username=web --delete-extraneous")
}
