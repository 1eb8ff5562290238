package config

import (
	"fmt"
	"maps"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// flatten returns the known keys of k, spelled canonically.
func flatten(k *koanf.Koanf) map[string]string {
	out := map[string]string{}
	for _, name := range k.Keys() {
		if key, ok := canonicalKey(name); ok {
			out[key] = k.String(name)
		}
	}
	return out
}

// Environ returns the process environment restricted to the known keys.
// Variable names match case-insensitively.
func Environ() map[string]string {
	k := koanf.New(".")
	_ = k.Load(env.Provider("", ".", func(s string) string {
		key, _ := canonicalKey(s)
		return key
	}), nil)
	return flatten(k)
}

// LoadFile reads a YAML (or JSON) settings file keyed like the environment.
// An empty path yields no settings.
func LoadFile(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]string{}, nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, &ConfigurationError{Key: path, Reason: err.Error()}
	}
	return flatten(k), nil
}

// Defaults stacks the settings file under the process environment. The result
// is the environment layer handed to Resolve.
func Defaults(fileValues, environment map[string]string) map[string]string {
	out := maps.Clone(fileValues)
	if out == nil {
		out = map[string]string{}
	}
	for key, v := range environment {
		if v != "" {
			out[key] = v
		}
	}
	return out
}

// FlagOverrides turns the explicitly set flags into overrides. flagKeys maps
// a flag name to its configuration key; unmapped flags are ignored.
func FlagOverrides(flags *pflag.FlagSet, flagKeys map[string]string) (map[string]string, error) {
	k := koanf.New(".")
	err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, f.Value.String()
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading flags: %w", err)
	}
	return flatten(k), nil
}
