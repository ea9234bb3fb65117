package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "NODEFLOW_"

// Load reads a YAML file and overlays NODEFLOW_* environment variables on top.
// Defaults are not applied; the broker does that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	conf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := ApplyEnv(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// Parse decodes YAML into a Config, rejecting unknown keys.
func Parse(data []byte) (*Config, error) {
	conf := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return conf, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// FromEnv builds a Config purely from NODEFLOW_* environment variables.
func FromEnv() (*Config, error) {
	conf := &Config{}
	if err := ApplyEnv(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// ApplyEnv overrides fields of conf with the NODEFLOW_* variables that are set.
func ApplyEnv(conf *Config) error {
	if err := env.ParseWithOptions(conf, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
