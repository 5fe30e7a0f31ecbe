package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Locale:   "en",
		Sequence: "last-request",
		Fetch: FetchConfig{
			Timeout:   15 * time.Second,
			MaxBytes:  5 * 1024 * 1024,
			UserAgent: "hxreload/1.0",
			CacheBust: true,
			LinkLimit: 4,
		},
		Notify: NotifyConfig{
			Schema: "hxreload",
			Ping:   54 * time.Second,
		},
		Storage: StorageConfig{
			Path:          "hxreload.db",
			LoginAttempts: 3,
			LoginWindow:   time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Serve: ServeConfig{
			Addr: ":8080",
		},
	}
}
