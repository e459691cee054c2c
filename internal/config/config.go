// Package config provides the configuration schema and loader for
// pulseclient-based tools: the target server address, authentication
// cookie, protocol timeouts, reconnection policy, and observability
// settings.
package config

import "time"

// Config is the root configuration structure for a pulseclient-based
// program. It is typically loaded from a YAML file using [Load] or
// [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Observe   ObserveConfig   `yaml:"observe"`
	LogLevel  LogLevel        `yaml:"log_level"`
}

// ServerConfig holds the connection parameters for a single audio daemon
// session (spec §2, §4.1).
type ServerConfig struct {
	// Address is the daemon address, either a leading-"/" UNIX socket path
	// or a "host[:port]" TCP address. Empty defers to the PULSE_SERVER
	// environment variable, then the platform default
	// ("/run/pulse/native").
	Address string `yaml:"address"`

	// ClientName is the application name sent in the SET_NAME handshake
	// step (spec §4.1).
	ClientName string `yaml:"client_name"`

	// CookiePath overrides the authentication cookie location. Empty
	// defers to the PULSE_COOKIE environment variable, then
	// "~/.config/pulse/cookie".
	CookiePath string `yaml:"cookie_path"`

	// HandshakeTimeout is decoded, defaulted (zero becomes 5s) and
	// validated, but no component in this module reads it: the handshake
	// waits up to pulse.DefaultTimeout for each of the AUTH and SET_NAME
	// replies.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// OperationTimeout is decoded, defaulted (zero becomes 5s) and
	// validated, but no component in this module reads it: pulse's
	// Context.Submit falls back to pulse.DefaultTimeout when the caller
	// passes no timeout.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// ReconnectConfig configures automatic reconnection after an established
// session transitions to Failed.
type ReconnectConfig struct {
	// Enabled turns on the reconnect loop. Default false: callers opt in
	// explicitly, since not every use of a Context wants an unattended
	// retry policy.
	Enabled bool `yaml:"enabled"`

	// MaxRetries bounds the number of reconnection attempts after each
	// disconnect. Zero defers to the reconnector's default of 10 attempts;
	// a negative value is rejected by [Validate].
	MaxRetries int `yaml:"max_retries"`

	// Backoff is the initial delay between reconnection attempts.
	Backoff time.Duration `yaml:"backoff"`

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// ObserveConfig configures the OpenTelemetry metrics provider.
type ObserveConfig struct {
	// ServiceName is reported in exported telemetry. Default: "pulseclient".
	ServiceName string `yaml:"service_name"`

	// MetricsAddr is the address the Prometheus /metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LogLevel names a [log/slog] verbosity level accepted in configuration.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	default:
		return false
	}
}
