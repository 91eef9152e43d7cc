// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultLogLevel is used when neither file nor environment sets one.
const DefaultLogLevel = "warn"

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Export  ExportConfig  `toml:"export"`
}

// StorageConfig maps database settings.
type StorageConfig struct {
	Path *string `toml:"path"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
}

// ExportConfig maps export settings.
type ExportConfig struct {
	Dir *string `toml:"dir"`
}

// EnvConfig holds overrides read from the environment.
type EnvConfig struct {
	DBPath    string `env:"CLIPMARK_DB_PATH" env-description:"database file path"`
	LogLevel  string `env:"CLIPMARK_LOG_LEVEL" env-description:"log level (debug, info, warn, error)"`
	ExportDir string `env:"CLIPMARK_EXPORT_DIR" env-description:"default directory for CSV exports"`
}

// Settings is the effective configuration after defaults, file and
// environment are applied, in that order.
type Settings struct {
	DBPath    string
	LogLevel  string
	ExportDir string
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// LoadEnv reads environment overrides.
func LoadEnv() (EnvConfig, error) {
	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return EnvConfig{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return env, nil
}

// Resolve loads the config file at path and the environment and merges them
// over the defaults.
func Resolve(path string) (Settings, error) {
	file, err := LoadConfig(path)
	if err != nil {
		return Settings{}, err
	}
	env, err := LoadEnv()
	if err != nil {
		return Settings{}, err
	}
	return Merge(file, env), nil
}

// Merge applies file values and then environment values over the defaults.
func Merge(file FileConfig, env EnvConfig) Settings {
	s := Settings{
		DBPath:   DefaultDBPath(),
		LogLevel: DefaultLogLevel,
	}
	applyString(&s.DBPath, file.Storage.Path, env.DBPath)
	applyString(&s.LogLevel, file.Log.Level, env.LogLevel)
	applyString(&s.ExportDir, file.Export.Dir, env.ExportDir)
	return s
}

func applyString(target, fileValue *string, envValue string) {
	if fileValue != nil {
		*target = *fileValue
	}
	if envValue != "" {
		*target = envValue
	}
}
