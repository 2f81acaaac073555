package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// validLogFormats are the accepted logging.log_format values.
var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateAPI(api *APIConfig) []error {
	var errs []error

	if api.BaseURL != "" {
		if err := checkURL(api.BaseURL, "api.base_url", "http", "https"); err != nil {
			errs = append(errs, err)
		}
	}

	if api.StreamURL != "" {
		if err := checkURL(api.StreamURL, "api.stream_url", "ws", "wss", "http", "https"); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func validateSession(s *SessionConfig) []error {
	var errs []error

	if s.TeamID < 0 {
		errs = append(errs, fmt.Errorf("session.team_id must not be negative, got %d", s.TeamID))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	var level slog.Level
	if err := level.UnmarshalText([]byte(l.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("logging.log_level %q is not a valid level", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format %q must be one of auto, text, json", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(n.ConnectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.connect_timeout %q is not a duration", n.ConnectTimeout))
	} else if d < minConnectTimeout {
		errs = append(errs, fmt.Errorf("network.connect_timeout must be at least %s", minConnectTimeout))
	}

	if d, err := time.ParseDuration(n.DataTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.data_timeout %q is not a duration", n.DataTimeout))
	} else if d < minDataTimeout {
		errs = append(errs, fmt.Errorf("network.data_timeout must be at least %s", minDataTimeout))
	}

	return errs
}

// ValidateResolved checks constraints that only make sense on the final
// merged result, after environment and CLI overrides have been applied.
func ValidateResolved(cfg *Config) error {
	var errs []error

	if cfg.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required (or set FIELDSYNC_API_URL)"))
	}

	if cfg.API.Token == "" {
		errs = append(errs, errors.New("api.token is required (or set FIELDSYNC_TOKEN)"))
	}

	if cfg.Session.TeamID == 0 {
		errs = append(errs, errors.New("session.team_id is required"))
	}

	return errors.Join(errs...)
}

func checkURL(raw, key string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s %q is not a valid URL", key, raw)
	}

	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}

	return fmt.Errorf("%s %q must use one of the schemes: %s", key, raw, strings.Join(schemes, ", "))
}
