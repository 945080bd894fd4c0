package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from YAML either as a Go duration
// string ("45s", "2m") or as a bare number of seconds (45).
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := parseSeconds(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: want seconds or a value like 30s", value.Line, value.Value)
	}
	*d = parsed
	return nil
}

// parseSeconds accepts plain seconds ("45") or a Go duration ("45s").
func parseSeconds(s string) (Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}
	d, err := time.ParseDuration(s)
	return Duration(d), err
}
