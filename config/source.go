// The source configuration is designed to allow adding other sources in the future. To do this, you need to add a new SourceType, update SourceConfig, and define the validation for the new source.
package config

import "fmt"

// SourceType represents where published files come from
type SourceType string

const (
	SourceTypeLocal SourceType = "local"
	SourceTypeS3    SourceType = "s3"
)

// SourceConfig holds the configuration for a file source
type SourceConfig struct {
	SourceType SourceType `json:"type" yaml:"type" toml:"type"`

	// Common options for all sources
	Common CommonSourceConfig `json:"common,omitempty" yaml:"common,omitempty" toml:"common,omitempty"`

	// type-specific configurations
	Local *LocalConfig `json:"local,omitempty" yaml:"local,omitempty" toml:"local,omitempty"`
	S3    *S3Config    `json:"s3,omitempty" yaml:"s3,omitempty" toml:"s3,omitempty"`
}

// CommonSourceConfig contains general settings applicable to all sources
type CommonSourceConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" toml:"timeout_seconds,omitempty"` // optional: request timeout in seconds
	MaxRetries     int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty" toml:"max_retries,omitempty"`             // optional: maximum number of retries for API calls
	MaxRPS         int    `json:"max_rps,omitempty" yaml:"max_rps,omitempty" toml:"max_rps,omitempty"`                         // optional: maximum requests per second to the backend (S3 API)
	TempDir        string `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty" toml:"temp_dir,omitempty"`                      // optional: where downloaded objects are staged before upload
}

// LocalConfig holds local directory source configuration
type LocalConfig struct {
	Path       string `json:"path" yaml:"path" toml:"path"`
	SkipHidden bool   `json:"skip_hidden,omitempty" yaml:"skip_hidden,omitempty" toml:"skip_hidden,omitempty"` // Skip dot-files and dot-directories
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Region          string `json:"region" yaml:"region" toml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"` // Only publish keys under this prefix
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty" toml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty" toml:"secret_access_key,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"` // For S3-compatible services
}

// Validate ensures the configuration is valid for the specified source type
func (sc *SourceConfig) Validate() error {
	if err := sc.Common.Validate(); err != nil {
		return err
	}

	switch sc.SourceType {
	case SourceTypeLocal:
		if sc.Local == nil {
			return fmt.Errorf("local configuration is required when type is 'local'")
		}
		return sc.Local.Validate()
	case SourceTypeS3:
		if sc.S3 == nil {
			return fmt.Errorf("s3 configuration is required when type is 's3'")
		}
		return sc.S3.Validate()
	default:
		return fmt.Errorf("unsupported source type: %s", sc.SourceType)
	}
}

// GetActiveConfig returns the active configuration based on the source type
func (sc *SourceConfig) GetActiveConfig() interface{} {
	switch sc.SourceType {
	case SourceTypeLocal:
		return sc.Local
	case SourceTypeS3:
		return sc.S3
	default:
		return nil
	}
}

// Validate validates local source configuration
func (lc *LocalConfig) Validate() error {
	if lc.Path == "" {
		return fmt.Errorf("local source path is required")
	}
	return nil
}

// Validate validates S3 configuration
func (s3c *S3Config) Validate() error {
	if s3c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if s3c.AccessKeyID == "" {
		return fmt.Errorf("s3 access key is required")
	}
	if s3c.SecretAccessKey == "" {
		return fmt.Errorf("s3 secret key is required")
	}
	if s3c.Endpoint == "" {
		return fmt.Errorf("s3 endpoint is required")
	}
	return nil
}

// ApplyDefaults sets default values if they are not provided
func (c *CommonSourceConfig) ApplyDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	// MaxRPS leave 0 (means no limit)
	// TempDir leave empty (os.TempDir)
}

func (c *CommonSourceConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max_rps cannot be negative")
	}
	return nil
}
