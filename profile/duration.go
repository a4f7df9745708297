package profile

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML as either a Go
// duration string ("1.5s", "200ms") or a bare number of milliseconds.
type Duration time.Duration

// Std returns the standard-library view of d.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asInt int64
	if err := node.Decode(&asInt); err == nil {
		*d = Duration(time.Duration(asInt) * time.Millisecond)
		return nil
	}

	var asStr string
	if err := node.Decode(&asStr); err != nil {
		return fmt.Errorf("profile: invalid duration %q", node.Value)
	}
	parsed, err := time.ParseDuration(asStr)
	if err != nil {
		return fmt.Errorf("profile: invalid duration %q: %w", asStr, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
