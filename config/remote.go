package config

import "fmt"

// RemoteType represents the protocol used to reach the remote server
type RemoteType string

const (
	RemoteTypeFTP  RemoteType = "ftp"
	RemoteTypeSFTP RemoteType = "sftp"
)

// RemoteConfig holds the configuration for the remote server
type RemoteConfig struct {
	RemoteType RemoteType `json:"type" yaml:"type" toml:"type"`

	// Common options for all remote types
	Common CommonRemoteConfig `json:"common,omitempty" yaml:"common,omitempty" toml:"common,omitempty"`

	// Type-specific configurations
	FTP  *FTPConfig  `json:"ftp,omitempty" yaml:"ftp,omitempty" toml:"ftp,omitempty"`
	SFTP *SFTPConfig `json:"sftp,omitempty" yaml:"sftp,omitempty" toml:"sftp,omitempty"`
}

// CommonRemoteConfig contains general settings applicable to all remote types
type CommonRemoteConfig struct {
	WorkerCount    int `json:"worker_count,omitempty" yaml:"worker_count,omitempty" toml:"worker_count,omitempty"`          // optional: number of parallel sessions (one connection each)
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" toml:"timeout_seconds,omitempty"` // optional: deadline for a single transport call
	MaxRetries     int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" toml:"max_retries,omitempty"`             // optional: attempts per published file
}

// FTPConfig holds FTP-specific configuration
type FTPConfig struct {
	Host               string `json:"host" yaml:"host" toml:"host"`                                                                     // FTP server host
	Port               int    `json:"port" yaml:"port" toml:"port"`                                                                     // FTP server port (default: 21)
	Username           string `json:"username" yaml:"username" toml:"username"`                                                         // FTP username
	Password           string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`                           // FTP password
	BasePath           string `json:"base_path,omitempty" yaml:"base_path,omitempty" toml:"base_path"`                                  // Root on the FTP server; nothing above it is touched
	UseTLS             bool   `json:"use_tls,omitempty" yaml:"use_tls,omitempty" toml:"use_tls,omitempty"`                              // Use FTPS (FTP over TLS)
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty" toml:"insecure_skip_verify"` // Accept any TLS certificate
}

// SFTPConfig holds SFTP-specific configuration
type SFTPConfig struct {
	Host                  string `json:"host" yaml:"host" toml:"host"`
	Port                  int    `json:"port" yaml:"port" toml:"port"` // default: 22
	Username              string `json:"username" yaml:"username" toml:"username"`
	Password              string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	BasePath              string `json:"base_path,omitempty" yaml:"base_path,omitempty" toml:"base_path"`
	KnownHosts            string `json:"known_hosts,omitempty" yaml:"known_hosts,omitempty" toml:"known_hosts,omitempty"`                                        // Path to a known_hosts file
	InsecureIgnoreHostKey bool   `json:"insecure_ignore_host_key,omitempty" yaml:"insecure_ignore_host_key,omitempty" toml:"insecure_ignore_host_key,omitempty"` // Skip host key verification
}

// Validate ensures the configuration is valid for the specified remote type
func (rc *RemoteConfig) Validate() error {
	if err := rc.Common.Validate(); err != nil {
		return err
	}

	switch rc.RemoteType {
	case RemoteTypeFTP:
		if rc.FTP == nil {
			return fmt.Errorf("ftp configuration is required when type is 'ftp'")
		}
		return rc.FTP.Validate()
	case RemoteTypeSFTP:
		if rc.SFTP == nil {
			return fmt.Errorf("sftp configuration is required when type is 'sftp'")
		}
		return rc.SFTP.Validate()
	default:
		return fmt.Errorf("unsupported remote type: %s", rc.RemoteType)
	}
}

// GetActiveConfig returns the active configuration based on the remote type
func (rc *RemoteConfig) GetActiveConfig() interface{} {
	switch rc.RemoteType {
	case RemoteTypeFTP:
		return rc.FTP
	case RemoteTypeSFTP:
		return rc.SFTP
	default:
		return nil
	}
}

// ServerIdentity is the key clock offsets are recorded under.
func (rc *RemoteConfig) ServerIdentity() string {
	switch rc.RemoteType {
	case RemoteTypeFTP:
		if rc.FTP != nil {
			return fmt.Sprintf("%s:%d", rc.FTP.Host, rc.FTP.Port)
		}
	case RemoteTypeSFTP:
		if rc.SFTP != nil {
			return fmt.Sprintf("%s:%d", rc.SFTP.Host, rc.SFTP.Port)
		}
	}
	return ""
}

// BasePath returns the remote root of the active configuration.
func (rc *RemoteConfig) BasePath() string {
	switch rc.RemoteType {
	case RemoteTypeFTP:
		if rc.FTP != nil {
			return rc.FTP.BasePath
		}
	case RemoteTypeSFTP:
		if rc.SFTP != nil {
			return rc.SFTP.BasePath
		}
	}
	return "/"
}

// Validate validates FTP configuration
func (fc *FTPConfig) Validate() error {
	if fc.Host == "" {
		return fmt.Errorf("ftp host is required")
	}
	if fc.Port <= 0 || fc.Port > 65535 {
		return fmt.Errorf("ftp port must be between 1 and 65535")
	}
	if fc.Username == "" {
		return fmt.Errorf("ftp username is required")
	}
	// Password can be empty for anonymous FTP
	return nil
}

// ApplyDefaults sets default values for FTP configuration
func (fc *FTPConfig) ApplyDefaults() {
	if fc.Port == 0 {
		fc.Port = 21 // Default FTP port
	}
	if fc.BasePath == "" {
		fc.BasePath = "/" // Default to root
	}
}

// Validate validates SFTP configuration
func (sc *SFTPConfig) Validate() error {
	if sc.Host == "" {
		return fmt.Errorf("sftp host is required")
	}
	if sc.Port <= 0 || sc.Port > 65535 {
		return fmt.Errorf("sftp port must be between 1 and 65535")
	}
	if sc.Username == "" {
		return fmt.Errorf("sftp username is required")
	}
	if sc.KnownHosts == "" && !sc.InsecureIgnoreHostKey {
		return fmt.Errorf("sftp known_hosts is required unless insecure_ignore_host_key is set")
	}
	return nil
}

// ApplyDefaults sets default values for SFTP configuration
func (sc *SFTPConfig) ApplyDefaults() {
	if sc.Port == 0 {
		sc.Port = 22
	}
	if sc.BasePath == "" {
		sc.BasePath = "/"
	}
}

// ApplyDefaults sets default values for remote configuration
func (c *CommonRemoteConfig) ApplyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Validate validates common remote configuration
func (c *CommonRemoteConfig) Validate() error {
	if c.WorkerCount < 0 {
		return fmt.Errorf("worker_count cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds cannot be negative")
	}
	return nil
}
