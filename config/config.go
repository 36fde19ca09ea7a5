package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	Source      SourceConfig    `json:"source" yaml:"source" toml:"source"`
	Cache       CacheConfig     `json:"cache" yaml:"cache" toml:"cache"`
	Remote      RemoteConfig    `json:"remote" yaml:"remote" toml:"remote"`
	Reconcile   ReconcileConfig `json:"reconcile" yaml:"reconcile" toml:"reconcile"`
	Mirror      MirrorConfig    `json:"mirror" yaml:"mirror" toml:"mirror"`
	Logger      LoggerConfig    `json:"logger" yaml:"logger" toml:"logger"`
	DryRun      bool            `json:"dry_run" yaml:"dry_run" toml:"dry_run"`                                    // If true, nothing is changed on the remote server
	MetricsAddr string          `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" toml:"metrics_addr"` // Serve Prometheus metrics here when set
}

// Validate validates the entire configuration
func (ac *AppConfig) Validate() error {
	if err := ac.Source.Validate(); err != nil {
		return fmt.Errorf("source config error: %w", err)
	}
	if err := ac.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config error: %w", err)
	}
	if err := ac.Remote.Validate(); err != nil {
		return fmt.Errorf("remote config error: %w", err)
	}
	if err := ac.Reconcile.Validate(); err != nil {
		return fmt.Errorf("reconcile config error: %w", err)
	}
	if err := ac.Mirror.Validate(); err != nil {
		return fmt.Errorf("mirror config error: %w", err)
	}
	if err := ac.Logger.Validate(); err != nil {
		return fmt.Errorf("logger config error: %w", err)
	}
	return nil
}

// ApplyDefaults applies default values to all components
func (ac *AppConfig) ApplyDefaults() {
	ac.Source.Common.ApplyDefaults()
	ac.Remote.Common.ApplyDefaults()
	ac.Reconcile.ApplyDefaults()
	ac.Mirror.ApplyDefaults()
	ac.Logger.ApplyDefaults()

	// Apply defaults for specific configs
	if ac.Cache.Bbolt != nil {
		ac.Cache.Bbolt.ApplyDefaults()
	}
	if ac.Remote.FTP != nil {
		ac.Remote.FTP.ApplyDefaults()
	}
	if ac.Remote.SFTP != nil {
		ac.Remote.SFTP.ApplyDefaults()
	}
}

// LoadFromFile reads a YAML configuration file. Missing sections keep their
// zero values and receive defaults.
func LoadFromFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Keys absent from the file keep these values
	cfg := &AppConfig{Reconcile: ReconcileConfig{Calibrate: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Cache.CacheType == "" {
		cfg.Cache.CacheType = CacheTypeBbolt
	}
	if cfg.Cache.CacheType == CacheTypeBbolt && cfg.Cache.Bbolt == nil {
		cfg.Cache.Bbolt = &BboltConfig{}
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
// This is a helper to populate config from env vars
func LoadFromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	// General configuration
	cfg.DryRun = getEnvBool("DRY_RUN", false)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Logger configuration
	cfg.Logger.Level = LogLevel(getEnv("LOG_LEVEL", string(LogLevelInfo)))
	cfg.Logger.Format = LogFormat(getEnv("LOG_FORMAT", string(LogFormatText)))

	// Cache configuration
	cfg.Cache.CacheType = CacheType(getEnv("CACHE_TYPE", string(CacheTypeBbolt)))
	cfg.Cache.Bbolt = &BboltConfig{
		Path:         getEnv("CACHE_BBOLT_PATH", "./manifest.db"),
		Bucket:       getEnv("CACHE_BBOLT_BUCKET", "files"),
		OffsetBucket: getEnv("CACHE_BBOLT_OFFSET_BUCKET", "clock_offsets"),
		Mode:         0600,
		NoSync:       getEnvBool("CACHE_BBOLT_NO_SYNC", false),
	}

	// Source configuration
	cfg.Source.SourceType = SourceType(getEnv("SOURCE_TYPE", string(SourceTypeLocal)))
	cfg.Source.Common.TimeoutSeconds = getEnvInt("SOURCE_TIMEOUT_SECONDS", 30)
	cfg.Source.Common.MaxRetries = getEnvInt("SOURCE_MAX_RETRIES", 3)
	cfg.Source.Common.MaxRPS = getEnvInt("SOURCE_MAX_RPS", 0)
	cfg.Source.Common.TempDir = getEnv("SOURCE_TEMP_DIR", "")

	cfg.Source.Local = &LocalConfig{
		Path:       getEnv("LOCAL_PATH", ""),
		SkipHidden: getEnvBool("LOCAL_SKIP_HIDDEN", true),
	}
	cfg.Source.S3 = &S3Config{
		Region:          getEnv("S3_REGION", ""),
		Bucket:          getEnv("S3_BUCKET", ""),
		Prefix:          getEnv("S3_PREFIX", ""),
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
	}

	// Remote configuration
	cfg.Remote.RemoteType = RemoteType(getEnv("REMOTE_TYPE", string(RemoteTypeFTP)))
	cfg.Remote.Common.WorkerCount = getEnvInt("REMOTE_WORKER_COUNT", 1)
	cfg.Remote.Common.TimeoutSeconds = getEnvInt("REMOTE_TIMEOUT_SECONDS", 30)
	cfg.Remote.Common.MaxRetries = getEnvInt("REMOTE_MAX_RETRIES", 3)

	cfg.Remote.FTP = &FTPConfig{
		Host:               getEnv("FTP_HOST", ""),
		Port:               getEnvInt("FTP_PORT", 21),
		Username:           getEnv("FTP_USERNAME", ""),
		Password:           getEnv("FTP_PASSWORD", ""),
		BasePath:           getEnv("FTP_BASE_PATH", "/"),
		UseTLS:             getEnvBool("FTP_USE_TLS", false),
		InsecureSkipVerify: getEnvBool("FTP_INSECURE_SKIP_VERIFY", false),
	}
	cfg.Remote.SFTP = &SFTPConfig{
		Host:                  getEnv("SFTP_HOST", ""),
		Port:                  getEnvInt("SFTP_PORT", 22),
		Username:              getEnv("SFTP_USERNAME", ""),
		Password:              getEnv("SFTP_PASSWORD", ""),
		BasePath:              getEnv("SFTP_BASE_PATH", "/"),
		KnownHosts:            getEnv("SFTP_KNOWN_HOSTS", ""),
		InsecureIgnoreHostKey: getEnvBool("SFTP_INSECURE_IGNORE_HOST_KEY", false),
	}

	// Reconcile configuration
	cfg.Reconcile.PollAttempts = getEnvInt("RECONCILE_POLL_ATTEMPTS", 10)
	cfg.Reconcile.PollIntervalMs = getEnvInt("RECONCILE_POLL_INTERVAL_MS", 1000)
	cfg.Reconcile.FutureGraceMinutes = getEnvInt("RECONCILE_FUTURE_GRACE_MINUTES", 12)
	cfg.Reconcile.Calibrate = getEnvBool("RECONCILE_CALIBRATE", true)
	cfg.Reconcile.DegradedClock = getEnvBool("RECONCILE_DEGRADED_CLOCK", false)
	cfg.Reconcile.ReuseOffsets = getEnvBool("RECONCILE_REUSE_OFFSETS", false)
	if secs, ok := lookupEnvInt("RECONCILE_CLOCK_OFFSET_SECONDS"); ok {
		// Applies to the configured server only
		cfg.Reconcile.KnownClockOffsets = map[string]int{cfg.Remote.ServerIdentity(): secs}
	}

	// Mirror configuration
	cfg.Mirror.Layout = Layout(getEnv("MIRROR_LAYOUT", string(LayoutMirror)))
	cfg.Mirror.DeleteExtraneous = getEnvBool("MIRROR_DELETE_EXTRANEOUS", false)
	cfg.Mirror.PruneRemoteDirs = getEnvBool("MIRROR_PRUNE_REMOTE_DIRS", false)
	cfg.Mirror.CheckFreshness = getEnvBool("MIRROR_CHECK_FRESHNESS", false)

	// Apply defaults
	cfg.ApplyDefaults()

	return cfg, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if intVal, ok := lookupEnvInt(key); ok {
		return intVal
	}
	return defaultValue
}

func lookupEnvInt(key string) (int, bool) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal, true
		}
	}
	return 0, false
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
