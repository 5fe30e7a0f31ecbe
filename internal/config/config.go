// Package config loads the hxreload configuration from a YAML file with
// HXRELOAD_* environment overrides. Nested keys use a double underscore:
// HXRELOAD_NOTIFY__SCHEMA sets notify.schema.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/pthm/hxreload"
	"github.com/pthm/hxreload/internal/logging"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "HXRELOAD_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// envKey maps HXRELOAD_FETCH__MAX_BYTES to fetch.max_bytes.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Locale == "" {
		return fmt.Errorf("locale is required")
	}
	if _, err := hxreload.ParseSequencePolicy(c.Sequence); err != nil {
		return fmt.Errorf("invalid sequence %q: must be last-request or last-response", c.Sequence)
	}
	if c.StateEncrypt && c.StateKey == "" {
		return fmt.Errorf("state_encrypt requires state_key")
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must be non-negative")
	}
	if c.Fetch.MaxBytes < 0 {
		return fmt.Errorf("fetch.max_bytes must be non-negative")
	}
	if c.Fetch.LinkLimit < 0 {
		return fmt.Errorf("fetch.link_limit must be non-negative")
	}
	if c.Notify.Ping < 0 {
		return fmt.Errorf("notify.ping must be non-negative")
	}
	if c.Storage.LoginAttempts < 0 {
		return fmt.Errorf("storage.login_attempts must be non-negative")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log.level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("invalid log.format %q: must be json or console", c.Log.Format)
	}
	return nil
}

// Policy returns the parsed sequence policy. Call Validate first.
func (c *Config) Policy() hxreload.SequencePolicy {
	p, _ := hxreload.ParseSequencePolicy(c.Sequence)
	return p
}

// FetcherConfig returns the fetcher settings.
func (c *Config) FetcherConfig() hxreload.FetcherConfig {
	return hxreload.FetcherConfig{
		Timeout:   c.Fetch.Timeout,
		MaxBytes:  c.Fetch.MaxBytes,
		UserAgent: c.Fetch.UserAgent,
		CacheBust: c.Fetch.CacheBust,
		Language:  c.Locale,
	}
}
