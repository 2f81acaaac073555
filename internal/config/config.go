// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for fieldsync. It supports a
// three-layer override chain (defaults -> config file -> environment ->
// CLI flags) with strict unknown-key detection.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Session SessionConfig `toml:"session"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// APIConfig locates the incident store and its change feed.
type APIConfig struct {
	BaseURL   string `toml:"base_url"`
	StreamURL string `toml:"stream_url"`
	// Token may also come from FIELDSYNC_TOKEN; the environment wins so
	// that credentials can stay out of the config file.
	Token string `toml:"token"`
}

// SessionConfig identifies the response team session.
type SessionConfig struct {
	TeamID int64  `toml:"team_id"`
	UserID string `toml:"user_id"`
}

// StorageConfig controls the local draft repository.
type StorageConfig struct {
	// DBPath is the SQLite database file. Empty means the platform data
	// directory.
	DBPath string `toml:"db_path"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // auto, text, json
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	APIBaseURL string // --api-url flag
	DBPath     string // --db flag
	TeamID     *int64 // --team flag
}
