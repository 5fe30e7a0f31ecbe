package config

import "time"

// Config is the top-level hxreload configuration, corresponding to
// hxreload.yml.
type Config struct {
	// Locale is the page language, sent to fragment endpoints as
	// Accept-Language and rendered into the demo page.
	Locale string `yaml:"locale" koanf:"locale"`
	// Sequence is "last-request" or "last-response".
	Sequence string `yaml:"sequence" koanf:"sequence"`
	StateKey string `yaml:"state_key" koanf:"state_key"`
	// StateEncrypt sends carried state as an encrypted token instead of a
	// signed one. Requires StateKey.
	StateEncrypt bool          `yaml:"state_encrypt" koanf:"state_encrypt"`
	Fetch        FetchConfig   `yaml:"fetch" koanf:"fetch"`
	Notify       NotifyConfig  `yaml:"notify" koanf:"notify"`
	Storage      StorageConfig `yaml:"storage" koanf:"storage"`
	Log          LogConfig     `yaml:"log" koanf:"log"`
	Serve        ServeConfig   `yaml:"serve" koanf:"serve"`
}

// FetchConfig holds fragment fetcher settings.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" koanf:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes" koanf:"max_bytes"`
	UserAgent string        `yaml:"user_agent" koanf:"user_agent"`
	CacheBust bool          `yaml:"cache_bust" koanf:"cache_bust"`
	// LinkLimit bounds concurrent link checks.
	LinkLimit int `yaml:"link_limit" koanf:"link_limit"`
}

// NotifyConfig holds the notification channel settings.
type NotifyConfig struct {
	// URL of the hub a listener connects to. Empty means the page's own
	// data-websocket-endpoint.
	URL     string `yaml:"url" koanf:"url"`
	Schema  string `yaml:"schema" koanf:"schema"`
	Channel string `yaml:"channel" koanf:"channel"`
	// Token lets manager connections broadcast over the socket.
	Token string        `yaml:"token" koanf:"token"`
	Ping  time.Duration `yaml:"ping" koanf:"ping"`
}

// StorageConfig holds the local storage settings.
type StorageConfig struct {
	Path string `yaml:"path" koanf:"path"`
	// LoginAttempts and LoginWindow bound auto-login attempts.
	LoginAttempts int           `yaml:"login_attempts" koanf:"login_attempts"`
	LoginWindow   time.Duration `yaml:"login_window" koanf:"login_window"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// ServeConfig holds the demo server settings.
type ServeConfig struct {
	Addr string `yaml:"addr" koanf:"addr"`
}
