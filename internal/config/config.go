// Package config loads stencil.yaml from a config directory, with
// STENCIL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	fileName  = "stencil"
	fileType  = "yaml"
	envPrefix = "STENCIL"

	KeyLogLevel      = "log_level"
	KeyRepair        = "repair"
	KeyJournal       = "journal"
	KeyAssetRoot     = "asset_root"
	KeyWatchDebounce = "watch_debounce"
)

// Config is the resolved configuration.
type Config struct {
	LogLevel      string
	Repair        bool
	Journal       string
	AssetRoot     string
	WatchDebounce time.Duration
}

func Default() Config {
	return Config{
		LogLevel:      "info",
		Repair:        true,
		AssetRoot:     ".",
		WatchDebounce: 200 * time.Millisecond,
	}
}

// Load reads stencil.yaml from dir, creating a default file on first use.
// A missing file is not an error.
func Load(dir string) (Config, *viper.Viper, error) {
	if dir != "" {
		if err := ensureDefaultFile(dir); err != nil {
			return Config{}, nil, fmt.Errorf("ensure default config: %w", err)
		}
	}

	d := Default()
	v := viper.New()
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyRepair, d.Repair)
	v.SetDefault(KeyJournal, d.Journal)
	v.SetDefault(KeyAssetRoot, d.AssetRoot)
	v.SetDefault(KeyWatchDebounce, d.WatchDebounce)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir != "" {
		v.SetConfigName(fileName)
		v.SetConfigType(fileType)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return Config{}, nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:      v.GetString(KeyLogLevel),
		Repair:        v.GetBool(KeyRepair),
		Journal:       v.GetString(KeyJournal),
		AssetRoot:     v.GetString(KeyAssetRoot),
		WatchDebounce: v.GetDuration(KeyWatchDebounce),
	}
	if cfg.WatchDebounce <= 0 {
		return Config{}, nil, fmt.Errorf("%s must be positive, got %s", KeyWatchDebounce, cfg.WatchDebounce)
	}
	return cfg, v, nil
}

func ensureDefaultFile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fileName+"."+fileType)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return WriteFile(path, Default())
}

// WriteFile stores cfg as YAML.
func WriteFile(path string, cfg Config) error {
	body, err := yaml.Marshal(struct {
		LogLevel      string `yaml:"log_level"`
		Repair        bool   `yaml:"repair"`
		Journal       string `yaml:"journal"`
		AssetRoot     string `yaml:"asset_root"`
		WatchDebounce string `yaml:"watch_debounce"`
	}{cfg.LogLevel, cfg.Repair, cfg.Journal, cfg.AssetRoot, cfg.WatchDebounce.String()})
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte("# stencil configuration\n"), body...), 0o644)
}
