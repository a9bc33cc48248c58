package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const secondsUnit = time.Second

// Duration wraps time.Duration so it can be expressed in YAML as a plain
// string ("15s", "2m30s") rather than a raw integer count of nanoseconds.
type Duration struct {
	time.Duration
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
