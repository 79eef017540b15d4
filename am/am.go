// Package am loads pagesync configuration: built-in defaults merged with
// system, user and project TOML files and PAGESYNC_* environment variables.
package am

import "time"

// Config is the pagesync configuration.
type Config struct {
	Remote     RemoteConfig    `mapstructure:"remote" toml:"remote"`
	Workspace  WorkspaceConfig `mapstructure:"workspace" toml:"workspace"`
	Database   DatabaseConfig  `mapstructure:"database" toml:"database"`
	Poll       PollConfig      `mapstructure:"poll" toml:"poll"`
	Validation ValidateConfig  `mapstructure:"validate" toml:"validate"`
	Codec      CodecConfig     `mapstructure:"codec" toml:"codec"`
	Log        LogConfig       `mapstructure:"log" toml:"log"`
	// MinVersion refuses older binaries, e.g. "1.4.0". Development builds
	// always pass.
	MinVersion string `mapstructure:"min_version" toml:"min_version,omitempty"`
}

// RemoteConfig configures the wiki connection.
type RemoteConfig struct {
	BaseURL           string  `mapstructure:"base_url" toml:"base_url"`
	Email             string  `mapstructure:"email" toml:"email,omitempty"` // empty = bearer token auth
	Token             string  `mapstructure:"token" toml:"token,omitempty"`
	SpaceKey          string  `mapstructure:"space_key" toml:"space_key"` // space for pages created from local files
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second"` // negative disables limiting
	Burst             int     `mapstructure:"burst" toml:"burst"`
	MaxRetries        int     `mapstructure:"max_retries" toml:"max_retries"` // negative disables retries
}

// WorkspaceConfig configures the local document tree.
type WorkspaceConfig struct {
	Root string `mapstructure:"root" toml:"root"`
}

// DatabaseConfig configures the SQLite record store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// PollConfig configures the remote poller.
type PollConfig struct {
	IntervalSeconds int         `mapstructure:"interval_seconds" toml:"interval_seconds"`
	Scope           ScopeConfig `mapstructure:"scope" toml:"scope"`
	AutoPull        bool        `mapstructure:"auto_pull" toml:"auto_pull"`
}

// ScopeConfig selects what the poller watches: one page, a page tree or a
// whole space.
type ScopeConfig struct {
	Kind string `mapstructure:"kind" toml:"kind"` // page, tree, space
	ID   string `mapstructure:"id" toml:"id"`     // page id, root page id or space key
}

// ValidateConfig configures document validation.
type ValidateConfig struct {
	MaxDocumentBytes int `mapstructure:"max_document_bytes" toml:"max_document_bytes"`
}

// CodecConfig configures format conversion.
type CodecConfig struct {
	References []string `mapstructure:"references" toml:"references"` // inline {ns:KEY} namespaces
}

// LogConfig configures logging.
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// PollInterval returns the poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	if c.Poll.IntervalSeconds <= 0 {
		return DefaultPollIntervalSeconds * time.Second
	}
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
