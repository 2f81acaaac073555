package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values, so that a pure
// environment-driven setup needs no file at all.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// CLI flags always win, matching user expectations for one-off overrides
// without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.Token != "" {
		cfg.API.Token = env.Token
	}

	if env.APIBaseURL != "" {
		cfg.API.BaseURL = env.APIBaseURL
	}

	if env.DBPath != "" {
		cfg.Storage.DBPath = env.DBPath
	}

	if cli.APIBaseURL != "" {
		cfg.API.BaseURL = cli.APIBaseURL
	}

	if cli.DBPath != "" {
		cfg.Storage.DBPath = cli.DBPath
	}

	if cli.TeamID != nil {
		cfg.Session.TeamID = *cli.TeamID
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = DefaultDBPath()
	}

	if err := ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}
