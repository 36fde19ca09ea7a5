package config

import "fmt"

// Layout decides where a source file lands under the remote root
type Layout string

const (
	LayoutMirror Layout = "mirror" // Keep the source key as the remote path
	LayoutDate   Layout = "date"   // YYYY/YYYY-MM-DD/<name> from the capture date
)

// MirrorConfig holds the publishing behaviour
type MirrorConfig struct {
	Layout           Layout `json:"layout,omitempty" yaml:"layout,omitempty" toml:"layout,omitempty"`
	DeleteExtraneous bool   `json:"delete_extraneous,omitempty" yaml:"delete_extraneous,omitempty" toml:"delete_extraneous,omitempty"` // Remove remote files whose source disappeared
	PruneRemoteDirs  bool   `json:"prune_remote_dirs,omitempty" yaml:"prune_remote_dirs,omitempty" toml:"prune_remote_dirs,omitempty"` // Remove top-level remote directories holding no source file
	CheckFreshness   bool   `json:"check_freshness,omitempty" yaml:"check_freshness,omitempty" toml:"check_freshness,omitempty"`       // Re-upload same-sized files that are older remotely
}

// ApplyDefaults sets default values for mirror configuration
func (mc *MirrorConfig) ApplyDefaults() {
	if mc.Layout == "" {
		mc.Layout = LayoutMirror
	}
}

// Validate validates mirror configuration
func (mc *MirrorConfig) Validate() error {
	switch mc.Layout {
	case LayoutMirror, LayoutDate, "":
	default:
		return fmt.Errorf("unsupported layout: %s (must be 'mirror' or 'date')", mc.Layout)
	}
	return nil
}
