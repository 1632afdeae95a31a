package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultStrategy    = Hash
	defaultConcurrency = 8
)

// Options configures fingerprint strategies per operation kind.
type Options struct {
	Resolve Strategy `yaml:"resolve"` // 0 => hash
	Module  Strategy `yaml:"module"`  // 0 => hash

	// ImmutablePaths are path prefixes whose contents never change once
	// present (e.g. content-addressed package stores). Paths under them are
	// always fingerprinted with Existence.
	ImmutablePaths []string `yaml:"immutablePaths"`

	// Concurrency bounds parallel fingerprinting in Create; 0 => 8.
	Concurrency int `yaml:"concurrency"`
}

// Selector maps a dependency path to a strategy under the given options.
// It must be a pure function.
type Selector func(o Options, path string) Strategy

// ResolveSelector picks Options.Resolve.
func ResolveSelector(o Options, _ string) Strategy { return o.Resolve }

// ModuleSelector picks Options.Module.
func ModuleSelector(o Options, _ string) Strategy { return o.Module }

// Fixed returns a Selector that always yields s.
func Fixed(s Strategy) Selector {
	return func(Options, string) Strategy { return s }
}

func (o Options) withDefaults() Options {
	if o.Resolve == 0 {
		o.Resolve = defaultStrategy
	}
	if o.Module == 0 {
		o.Module = defaultStrategy
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	cleaned := make([]string, 0, len(o.ImmutablePaths))
	for _, p := range o.ImmutablePaths {
		if p != "" {
			cleaned = append(cleaned, filepath.Clean(p))
		}
	}
	o.ImmutablePaths = cleaned
	return o
}

// Immutable reports whether path lives under one of ImmutablePaths.
func (o Options) Immutable(path string) bool {
	for _, p := range o.ImmutablePaths {
		if path == p {
			return true
		}
		prefix := p
		if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
			prefix += string(os.PathSeparator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// DecodeOptions parses YAML options. Missing fields take their defaults.
//
//	resolve: hash
//	module: timestamp+hash
//	immutablePaths: [/repo/.store]
func DecodeOptions(data []byte) (Options, error) {
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, fmt.Errorf("snapshot: decode options: %w", err)
	}
	return o.withDefaults(), nil
}
