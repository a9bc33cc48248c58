// Package config handles client-core configuration loading.
//
// This is deliberately small. Wire-level configuration (host, port, TLS)
// belongs to the Transport collaborator, which is out of scope for this
// module; what lives here is the handful of knobs the core components
// themselves need (builtin type seeds, request timeouts, the redispatch
// attempt cap, and the default simulation speed used for motion
// prediction).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the core's tunables.
type Config struct {
	// SeedTypes lists additional type names, beyond the four
	// unconditional builtins (root, root-entity, root-operation,
	// anonymous), that
	// the Type Service should treat as bound from startup without a
	// round-trip to the server. Useful for well-known base types a
	// client always expects (e.g. "game_entity").
	SeedTypes []string `yaml:"seed_types"`

	// LoginTimeout bounds how long an Account waits for a login/logout
	// reply before the pending request is cancelled and a failure signal
	// fires. Zero (or negative) leaves the Account's built-in 15 second
	// default in place.
	LoginTimeout Duration `yaml:"login_timeout"`

	// RequestTimeout is loaded and defaulted here, but no component reads
	// it: non-login pending requests (look, create, possess) have no
	// timeout.
	RequestTimeout Duration `yaml:"request_timeout"`

	// RedispatchLimit caps how many times a single operation may be
	// deferred by the redispatch queue before it is dropped.
	RedispatchLimit int `yaml:"redispatch_limit"`

	// SimulationSpeed scales the wall-clock delta used by entity motion
	// prediction; 1.0 is real time.
	SimulationSpeed float64 `yaml:"simulation_speed"`

	// LogLevel is parsed with ParseLogLevel.
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config populated with the defaults named throughout
// the specification: a 15 second login/logout timeout, a redispatch cap
// of 16 attempts, and real-time simulation speed.
func Default() Config {
	return Config{
		LoginTimeout:    Duration{15 * secondsUnit},
		RequestTimeout:  Duration{15 * secondsUnit},
		RedispatchLimit: 16,
		SimulationSpeed: 1.0,
		LogLevel:        "info",
	}
}

// Load reads a YAML config file, starting from Default() so that a
// partially specified file only overrides what it mentions.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}
