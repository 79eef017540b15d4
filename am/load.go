package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/pagesync/errors"
)

// ProjectConfigName is the file searched for upward from the working
// directory.
const ProjectConfigName = "pagesync.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAGESYNC"

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
	explicitPath  string

	// ConfigSources records, per dotted key, which file last set it during
	// the most recent load.
	ConfigSources = map[string]SourceInfo{}
)

// SetConfigFile makes Load read only path (plus defaults and environment)
// instead of searching the usual locations. An empty path restores the
// search.
func SetConfigFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	explicitPath = path
	globalConfig = nil
	viperInstance = nil
}

// Load reads the configuration once and caches it.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// GetViper returns the Viper instance behind Load.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	v, _ := initViper()
	return v
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads defaults overlaid with one TOML file, ignoring the
// environment.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return cfg, nil
}

// Reset clears the cached configuration
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// ActiveConfigFile returns the highest-precedence config file in effect,
// or "" when only defaults and environment apply.
func ActiveConfigFile() string {
	mu.Lock()
	defer mu.Unlock()
	if explicitPath != "" {
		return explicitPath
	}
	paths := configPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		if _, err := os.Stat(paths[i].Path); err == nil {
			return paths[i].Path
		}
	}
	return ""
}

// initViper must be called with mu held.
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)

	ConfigSources = map[string]SourceInfo{}
	if explicitPath != "" {
		if err := mergeFile(v, SourceInfo{Source: SourceExplicit, Path: explicitPath}); err != nil {
			return nil, err
		}
	} else {
		for _, src := range configPaths() {
			if _, err := os.Stat(src.Path); err != nil {
				continue
			}
			if err := mergeFile(v, src); err != nil {
				return nil, err
			}
		}
	}

	viperInstance = v
	return v, nil
}

// configPaths lists candidate files, lowest precedence first.
func configPaths() []SourceInfo {
	paths := []SourceInfo{{Source: SourceSystem, Path: "/etc/pagesync/config.toml"}}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, SourceInfo{Source: SourceUser, Path: filepath.Join(home, ".pagesync", "config.toml")})
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, SourceInfo{Source: SourceProject, Path: project})
	}
	return paths
}

// mergeFile overlays one TOML file onto v and records the keys it set.
func mergeFile(v *viper.Viper, src SourceInfo) error {
	tmp := viper.New()
	tmp.SetConfigFile(src.Path)
	tmp.SetConfigType("toml")
	if err := tmp.ReadInConfig(); err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to read config file %s", src.Path),
			"fix the TOML syntax or remove the file")
	}
	// The config layer sits below environment variables.
	if err := v.MergeConfigMap(tmp.AllSettings()); err != nil {
		return errors.Wrapf(err, "failed to merge %s", src.Path)
	}
	for _, key := range tmp.AllKeys() {
		ConfigSources[key] = src
	}
	return nil
}

// findProjectConfig searches for pagesync.toml by walking up from the
// working directory.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
