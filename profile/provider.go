package profile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider supplies the Profile for an operation name.
type Provider interface {
	// Profile returns the profile for name. Implementations fall back to
	// their default (or the package default) when no entry matches; the
	// returned profile is already normalized.
	Profile(ctx context.Context, name string) (Profile, error)
}

// StaticProvider is an in-process Provider backed by a map and an optional
// default.
type StaticProvider struct {
	Profiles map[string]Profile
	Default  *Profile
}

func (p *StaticProvider) Profile(_ context.Context, name string) (Profile, error) {
	if p != nil && p.Profiles != nil {
		if prof, ok := p.Profiles[name]; ok {
			return prof.Normalize(), nil
		}
	}
	if p != nil && p.Default != nil {
		return p.Default.Normalize(), nil
	}
	return Default().Normalize(), nil
}

// fileSchema is the on-disk layout of a profile file:
//
//	default:
//	  retry:
//	    max_attempts: 3
//	    base_delay: 1s
//	profiles:
//	  ai.completion:
//	    retry:
//	      max_attempts: 5
//	    circuit:
//	      threshold: 5
//	      open_timeout: 60s
type fileSchema struct {
	Default  *Profile           `yaml:"default"`
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadFile reads a YAML profile file into a StaticProvider.
func LoadFile(path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML profile data into a StaticProvider.
func Parse(data []byte) (*StaticProvider, error) {
	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("profile: parse: %w", err)
	}
	return &StaticProvider{Profiles: fs.Profiles, Default: fs.Default}, nil
}
