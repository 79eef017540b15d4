package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/types"
	"github.com/teranos/pagesync/version"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 60, cfg.Poll.IntervalSeconds)
	assert.Equal(t, "space", cfg.Poll.Scope.Kind)
	assert.Equal(t, 500*1024, cfg.Validation.MaxDocumentBytes)
	assert.Equal(t, []string{"jira"}, cfg.Codec.References)
	assert.Equal(t, 3, cfg.Remote.MaxRetries)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"https base url", func(c *Config) { c.Remote.BaseURL = "https://example.atlassian.net/wiki" }, false},
		{"base url without scheme", func(c *Config) { c.Remote.BaseURL = "example.atlassian.net" }, true},
		{"ftp base url", func(c *Config) { c.Remote.BaseURL = "ftp://example.com" }, true},
		{"zero interval means default", func(c *Config) { c.Poll.IntervalSeconds = 0 }, false},
		{"negative interval", func(c *Config) { c.Poll.IntervalSeconds = -1 }, true},
		{"tree scope needs id", func(c *Config) { c.Poll.Scope = ScopeConfig{Kind: "tree"} }, true},
		{"tree scope with id", func(c *Config) { c.Poll.Scope = ScopeConfig{Kind: "tree", ID: "42"} }, false},
		{"unknown scope kind", func(c *Config) { c.Poll.Scope.Kind = "galaxy" }, true},
		{"size check disabled", func(c *Config) { c.Validation.MaxDocumentBytes = -1 }, false},
		{"negative burst", func(c *Config) { c.Remote.Burst = -2 }, true},
		{"min version on dev build", func(c *Config) { c.MinVersion = "9.0.0" }, false},
		{"malformed min version", func(c *Config) { c.MinVersion = "soon" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_MinVersion(t *testing.T) {
	old := version.Version
	t.Cleanup(func() { version.Version = old })
	version.Version = "1.3.0"

	cfg := DefaultConfig()
	cfg.MinVersion = "1.2.0"
	assert.NoError(t, cfg.Validate())

	cfg.MinVersion = "2.0.0"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires pagesync 2.0.0")
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestPollScope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.SpaceKey = "DOC"
	scope, err := cfg.PollScope()
	require.NoError(t, err)
	assert.Equal(t, types.SpaceScope{SpaceKey: "DOC"}, scope)

	cfg.Poll.Scope = ScopeConfig{Kind: "page", ID: "7"}
	scope, err = cfg.PollScope()
	require.NoError(t, err)
	assert.Equal(t, types.PageScope{PageID: "7"}, scope)

	cfg.Remote.SpaceKey = ""
	cfg.Poll.Scope = ScopeConfig{Kind: "space"}
	_, err = cfg.PollScope()
	assert.Error(t, err)
}

func TestPollInterval(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Minute, cfg.PollInterval())
	cfg.Poll.IntervalSeconds = 5
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "docs", "guides")
	require.NoError(t, os.MkdirAll(sub, DefaultDirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), nil, DefaultFilePermissions))

	t.Chdir(sub)
	found := findProjectConfig()
	require.NotEmpty(t, found)
	assert.True(t, filepath.IsAbs(found))
	assert.Equal(t, ProjectConfigName, filepath.Base(found))

	t.Chdir(t.TempDir())
	assert.Empty(t, findProjectConfig())
}

func TestLoad_PrecedenceAndSources(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(project)
	t.Cleanup(Reset)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".pagesync"), DefaultDirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".pagesync", "config.toml"), []byte(`
[remote]
base_url = "https://user.example.com/wiki"
space_key = "USER"

[poll]
interval_seconds = 30
`), DefaultFilePermissions))
	require.NoError(t, os.WriteFile(filepath.Join(project, ProjectConfigName), []byte(`
[remote]
space_key = "PROJ"
`), DefaultFilePermissions))
	t.Setenv("PAGESYNC_POLL_INTERVAL_SECONDS", "15")

	SetConfigFile("")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://user.example.com/wiki", cfg.Remote.BaseURL)
	assert.Equal(t, "PROJ", cfg.Remote.SpaceKey, "project file wins over user file")
	assert.Equal(t, 15, cfg.Poll.IntervalSeconds, "environment wins over files")

	settings, err := Introspect()
	require.NoError(t, err)
	bySource := map[string]SettingInfo{}
	for _, s := range settings {
		bySource[s.Key] = s
	}
	assert.Equal(t, SourceProject, bySource["remote.space_key"].Source)
	assert.Equal(t, SourceUser, bySource["remote.base_url"].Source)
	assert.Equal(t, SourceEnvironment, bySource["poll.interval_seconds"].Source)
	assert.Equal(t, SourceDefault, bySource["database.path"].Source)
}

func TestLoad_ExplicitFile(t *testing.T) {
	t.Cleanup(func() { SetConfigFile(""); Reset() })
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\npath = \"x.db\"\n"), DefaultFilePermissions))

	SetConfigFile(path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "x.db", cfg.Database.Path)
	assert.Equal(t, path, ActiveConfigFile())
}

func TestLoad_InvalidTOML(t *testing.T) {
	t.Cleanup(func() { SetConfigFile(""); Reset() })
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[remote\n"), DefaultFilePermissions))

	SetConfigFile(path)
	_, err := Load()
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestIntrospect_MasksToken(t *testing.T) {
	t.Cleanup(func() { SetConfigFile(""); Reset() })
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("[remote]\ntoken = \"hunter2\"\n"), DefaultFilePermissions))
	SetConfigFile(path)

	settings, err := Introspect()
	require.NoError(t, err)
	for _, s := range settings {
		if s.Key == "remote.token" {
			assert.Equal(t, "********", s.Value)
			return
		}
	}
	t.Fatal("remote.token not listed")
}

func TestSave_RotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "pagesync.toml")
	cfg := DefaultConfig()

	for i := 1; i <= 5; i++ {
		cfg.Poll.IntervalSeconds = i * 10
		require.NoError(t, Save(cfg, path))
	}

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.Poll.IntervalSeconds)

	for n, want := range map[int]int{1: 40, 2: 30, 3: 20} {
		data, err := os.ReadFile(backupName(path, n))
		require.NoError(t, err)
		var back Config
		require.NoError(t, toml.Unmarshal(data, &back))
		assert.Equal(t, want, back.Poll.IntervalSeconds, "backup %d", n)
	}
	_, err = os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)
	require.NoError(t, InitFile(path, RemoteConfig{BaseURL: "https://x.example.com/wiki", SpaceKey: "DOC", Token: "secret"}))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DOC", cfg.Remote.SpaceKey)
	assert.Equal(t, ScopeConfig{Kind: "space", ID: "DOC"}, cfg.Poll.Scope)
	assert.Empty(t, cfg.Remote.Token)

	err = InitFile(path, RemoteConfig{})
	assert.True(t, errors.Is(err, errors.ErrPathTaken))
}

func TestConfigWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("[poll]\ninterval_seconds = 60\n"), DefaultFilePermissions))

	cw, err := NewConfigWatcher(path, nil)
	require.NoError(t, err)
	cw.debouncePeriod = 10 * time.Millisecond
	cw.reload = func() (*Config, error) { return LoadFromFile(path) }

	got := make(chan int, 4)
	cw.OnReload(func(c *Config) error {
		got <- c.Poll.IntervalSeconds
		return nil
	})
	cw.Start()
	defer cw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[poll]\ninterval_seconds = 5\n"), DefaultFilePermissions))
	select {
	case n := <-got:
		assert.Equal(t, 5, n)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
}

func TestConfigWatcher_InvalidConfigSkipsCallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)
	require.NoError(t, os.WriteFile(path, nil, DefaultFilePermissions))
	cw, err := NewConfigWatcher(path, nil)
	require.NoError(t, err)
	defer cw.Stop()

	called := false
	cw.OnReload(func(*Config) error { called = true; return nil })
	cw.reload = func() (*Config, error) {
		c := DefaultConfig()
		c.Poll.IntervalSeconds = -1
		return c, nil
	}
	assert.Error(t, cw.reloadNow())
	assert.False(t, called)
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/x/pagesync.toml.back2"))
	assert.False(t, isBackupFile("/x/pagesync.toml"))
}
