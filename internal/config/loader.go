package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config].  It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with package defaults, mirroring
// the fallback chain documented on [ServerConfig] (explicit value, then
// environment variable, then hardcoded default — the environment-variable
// step happens later, in pkg/pulse, since it is session-specific).
func applyDefaults(cfg *Config) {
	if cfg.Server.ClientName == "" {
		cfg.Server.ClientName = "pulseclient"
	}
	if cfg.Server.HandshakeTimeout == 0 {
		cfg.Server.HandshakeTimeout = 5 * time.Second
	}
	if cfg.Server.OperationTimeout == 0 {
		cfg.Server.OperationTimeout = 5 * time.Second
	}
	if cfg.Reconnect.Backoff == 0 {
		cfg.Reconnect.Backoff = 500 * time.Millisecond
	}
	if cfg.Reconnect.MaxBackoff == 0 {
		cfg.Reconnect.MaxBackoff = 30 * time.Second
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = "pulseclient"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogLevelInfo
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Server.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.handshake_timeout must not be negative"))
	}
	if cfg.Server.OperationTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.operation_timeout must not be negative"))
	}

	if cfg.Reconnect.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_retries must not be negative"))
	}
	if cfg.Reconnect.Backoff < 0 {
		errs = append(errs, fmt.Errorf("reconnect.backoff must not be negative"))
	}
	if cfg.Reconnect.MaxBackoff < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff must not be negative"))
	}
	if cfg.Reconnect.Enabled && cfg.Reconnect.MaxBackoff < cfg.Reconnect.Backoff {
		errs = append(errs, fmt.Errorf("reconnect.max_backoff must not be less than reconnect.backoff"))
	}

	return errors.Join(errs...)
}
