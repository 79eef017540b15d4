package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/pagesync/codec"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/internal/httpclient"
	"github.com/teranos/pagesync/types"
	"github.com/teranos/pagesync/validate"
)

// Default values
const (
	DefaultDatabasePath        = ".pagesync/pagesync.db"
	DefaultPollIntervalSeconds = 60
	DefaultScopeKind           = "space"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("remote.timeout_seconds", 30)
	v.SetDefault("remote.requests_per_second", 5.0) // Cloud rate limits start near 10 rps per user
	v.SetDefault("remote.burst", 10)
	v.SetDefault("remote.max_retries", 3)

	v.SetDefault("workspace.root", ".")
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("poll.interval_seconds", DefaultPollIntervalSeconds)
	v.SetDefault("poll.scope.kind", DefaultScopeKind)
	v.SetDefault("poll.auto_pull", false)

	v.SetDefault("validate.max_document_bytes", validate.DefaultMaxBytes)
	v.SetDefault("codec.references", codec.DefaultReferences)
	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars binds credentials to their environment variables so
// they never need to live in a config file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("remote.token", "PAGESYNC_REMOTE_TOKEN", "CONFLUENCE_API_TOKEN")
	v.BindEnv("remote.email", "PAGESYNC_REMOTE_EMAIL", "CONFLUENCE_EMAIL")
	v.BindEnv("remote.base_url", "PAGESYNC_REMOTE_BASE_URL", "CONFLUENCE_BASE_URL")
	v.BindEnv("database.path", "PAGESYNC_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// PollScope converts the scope section into a types.Scope. An empty id
// falls back to the remote space key for space scopes.
func (c *Config) PollScope() (types.Scope, error) {
	kind := c.Poll.Scope.Kind
	if kind == "" {
		kind = DefaultScopeKind
	}
	id := c.Poll.Scope.ID
	if id == "" && kind == "space" {
		id = c.Remote.SpaceKey
	}
	scope, err := types.ParseScope(kind, id)
	if err != nil {
		return nil, errors.WithHint(err, "set poll.scope.kind to page, tree or space and poll.scope.id")
	}
	return scope, nil
}

// HTTPOptions returns the transport client options.
func (c *Config) HTTPOptions() httpclient.Options {
	return httpclient.Options{
		Timeout:           time.Duration(c.Remote.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Remote.RequestsPerSecond,
		Burst:             c.Remote.Burst,
		MaxRetries:        c.Remote.MaxRetries,
	}
}

// CodecOptions returns the conversion options.
func (c *Config) CodecOptions() codec.Options {
	return codec.Options{References: c.Codec.References}
}

// String returns a string representation of the config. The token is
// never included.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Remote: %s, Space: %s, Database: %s, Poll: {%s:%s every %ds}}",
		c.Remote.BaseURL, c.Remote.SpaceKey, c.GetDatabasePath(),
		c.Poll.Scope.Kind, c.Poll.Scope.ID, c.Poll.IntervalSeconds)
}
