package ratelimit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceConfigs maps an API name to its limiter config.
type SourceConfigs struct {
	RateLimits map[string]Config `yaml:"rate_limits" json:"rate_limits"`
}

// LoadSourceConfigs parses YAML bytes into SourceConfigs.
func LoadSourceConfigs(data []byte) (SourceConfigs, error) {
	var cfgs SourceConfigs
	if err := yaml.Unmarshal(data, &cfgs); err != nil {
		return SourceConfigs{}, err
	}
	for name, cfg := range cfgs.RateLimits {
		cfgs.RateLimits[name] = applyDefaults(cfg)
	}
	return cfgs, nil
}

// LoadFile reads a rate-limit YAML file.
func LoadFile(path string) (SourceConfigs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceConfigs{}, fmt.Errorf("read rate limits: %w", err)
	}
	cfgs, err := LoadSourceConfigs(data)
	if err != nil {
		return SourceConfigs{}, fmt.Errorf("parse rate limits %s: %w", path, err)
	}
	return cfgs, nil
}

// Get returns the limiter config for a source. Missing entries yield the
// defaults together with an error the caller may choose to log.
func (s SourceConfigs) Get(source string) (Config, error) {
	if s.RateLimits == nil {
		return DefaultConfig(), fmt.Errorf("no rate_limits configured")
	}
	cfg, ok := s.RateLimits[source]
	if !ok {
		return DefaultConfig(), fmt.Errorf("rate_limits for %s not found", source)
	}
	return applyDefaults(cfg), nil
}
