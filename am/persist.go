package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/logger"
)

// backupCount is how many rotated copies Save keeps.
const backupCount = 3

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	oldest := backupName(configPath, backupCount)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", logger.FieldFile, oldest, logger.FieldError, err)
	}
	for n := backupCount - 1; n >= 1; n-- {
		from := backupName(configPath, n)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, backupName(configPath, n+1)); err != nil {
			return errors.Wrapf(err, "failed to rotate %s", from)
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(backupName(configPath, 1), content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

func backupName(configPath string, n int) string {
	return configPath + ".back" + string(rune('0'+n))
}

// Save writes cfg as TOML to configPath, keeping up to three backups of
// the previous content. A running ConfigWatcher ignores the write.
func Save(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}
	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}

// DefaultConfig returns the built-in defaults as a Config.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always decode.
		panic(err)
	}
	return cfg
}

// InitFile writes a config file holding the defaults plus the given remote
// settings. An existing file is left alone and reported with ErrPathTaken.
func InitFile(configPath string, remote RemoteConfig) error {
	if _, err := os.Stat(configPath); err == nil {
		return errors.WithHint(
			errors.Wrapf(errors.ErrPathTaken, "%s already exists", configPath),
			"edit it directly or remove it first")
	}
	cfg := DefaultConfig()
	if remote.BaseURL != "" {
		cfg.Remote.BaseURL = remote.BaseURL
	}
	if remote.SpaceKey != "" {
		cfg.Remote.SpaceKey = remote.SpaceKey
		cfg.Poll.Scope = ScopeConfig{Kind: "space", ID: remote.SpaceKey}
	}
	cfg.Remote.Email = remote.Email
	// Tokens belong in the environment.
	cfg.Remote.Token = ""
	return Save(cfg, configPath)
}
