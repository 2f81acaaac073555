package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "FIELDSYNC_CONFIG"
	EnvToken  = "FIELDSYNC_TOKEN"
	EnvAPIURL = "FIELDSYNC_API_URL"
	EnvDBPath = "FIELDSYNC_DB"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FIELDSYNC_CONFIG: override config file path
	Token      string // FIELDSYNC_TOKEN: session token
	APIBaseURL string // FIELDSYNC_API_URL: incident store base URL
	DBPath     string // FIELDSYNC_DB: draft database path
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant
// fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Token:      os.Getenv(EnvToken),
		APIBaseURL: os.Getenv(EnvAPIURL),
		DBPath:     os.Getenv(EnvDBPath),
	}
}
