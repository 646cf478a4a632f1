package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// PassEnv overrides the password from the settings file when set.
const PassEnv = "FWSPEED_PASS"

// Load reads a YAML settings file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrCreate loads path, or writes and returns the defaults when the file
// does not exist yet. created reports the latter.
func LoadOrCreate(path string) (cfg *Config, created bool, err error) {
	cfg, err = Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	cfg = Default()
	if err := Save(path, cfg); err != nil {
		return nil, false, fmt.Errorf("write default settings: %w", err)
	}
	applyEnv(cfg)
	return cfg, true, nil
}

func applyEnv(cfg *Config) {
	if pass, ok := os.LookupEnv(PassEnv); ok {
		cfg.Pass = pass
	}
}
