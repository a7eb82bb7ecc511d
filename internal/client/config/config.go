package config

import "time"

// Config holds runtime settings for the Lantern chat client.
type Config struct {
	// ServerAddr is the host:port of the chat server.
	ServerAddr string
	// Username preselects the account to log in as. Empty means the
	// client asks interactively (or reuses the saved session).
	Username string
	// Password is only ever populated from the session file, never
	// from flags or JSON.
	Password string
	// SessionPath is where remembered credentials live. Derived from
	// the config file location unless overridden.
	SessionPath string
	// KeepaliveInterval is how often the client pings the server.
	KeepaliveInterval time.Duration
	// MaxMessages caps the number of messages kept per view.
	MaxMessages int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:6000"
	c.KeepaliveInterval = 5 * time.Second
	c.MaxMessages = 500
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the LANTERN_SERVER environment variable, JSON (if present) and command-line
// flags (if present). Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	if cfg.SessionPath == "" {
		cfg.SessionPath = defaultSessionPath()
	}
	loadSession(cfg)
	return cfg
}
