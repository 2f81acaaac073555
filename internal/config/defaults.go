package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work without any config file, apart from the API
// endpoints and token which have no sensible defaults.
const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields retain defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
