package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file. Fields missing from the file stay zero.
func Load(path string) (*Config, error) {
	return load(path, &Config{})
}

// LoadWithDefaults reads a YAML config file on top of Default(). A value written in
// the file always wins, so an explicit zero such as "ping_interval: 0s" turns pings off
// instead of falling back to the default.
func LoadWithDefaults(path string) (*Config, error) {
	return load(path, Default())
}

// LoadAndValidate loads config on top of the defaults and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func load(path string, cfg *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expandEnv(string(data)))))
	// Misspelled keys would otherwise be ignored silently
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml %s: %w", path, err)
	}

	return cfg, nil
}

// expandEnv substitutes $VAR and ${VAR}. ${VAR:-fallback} uses fallback when VAR is
// unset or empty, so an example config can carry working values.
func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		name, fallback, hasFallback := strings.Cut(name, ":-")
		if v := os.Getenv(name); v != "" || !hasFallback {
			return v
		}
		return fallback
	})
}
