package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	xdgAppName = "agmd"
	configName = "config"
	configType = "yaml"
	envPrefix  = "AGMD"

	DefaultCalendar    = "Tasks"
	DefaultIgnoreFile  = ".agmdignore"
	DefaultConcurrency = 8
)

type Config struct {
	Calendar    string `mapstructure:"calendar"`
	Root        string `mapstructure:"root"`
	IgnoreFile  string `mapstructure:"ignore_file"`
	Cache       string `mapstructure:"cache"`
	Concurrency int    `mapstructure:"concurrency"`
}

func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, xdgAppName, "index.db")
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)

	v.SetDefault("calendar", DefaultCalendar)
	v.SetDefault("root", ".")
	v.SetDefault("ignore_file", DefaultIgnoreFile)
	v.SetDefault("cache", defaultCachePath())
	v.SetDefault("concurrency", DefaultConcurrency)

	// AGMD_CALENDAR, AGMD_IGNORE_FILE, ...
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads ~/.config/agmd/config.yaml. A missing file yields the defaults,
// and AGMD_* environment variables override both.
func Load() (*Config, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads the configuration kept in dir.
func LoadFrom(dir string) (*Config, error) {
	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if cfg.Calendar == "" {
		cfg.Calendar = DefaultCalendar
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &cfg, nil
}

func Save(cfg *Config) error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return SaveTo(dir, cfg)
}

// SaveTo writes cfg to the configuration file in dir.
func SaveTo(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	v := viper.New()
	v.Set("calendar", cfg.Calendar)
	v.Set("root", cfg.Root)
	v.Set("ignore_file", cfg.IgnoreFile)
	v.Set("cache", cfg.Cache)
	v.Set("concurrency", cfg.Concurrency)
	if err := v.WriteConfigAs(filepath.Join(dir, configName+"."+configType)); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}
