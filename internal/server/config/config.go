// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the Lantern server.
//
// Fields:
//   - Addr: bind address for the chat listener.
//   - MetricsAddr: bind address for the Prometheus endpoint; empty disables it.
//   - DataDir: directory holding users.json, messages.json and config.json.
//   - IdleTimeout: a connection silent this long is evicted. Must stay above
//     twice the client keepalive interval (5s) to avoid false eviction.
//   - ReapInterval: how often the idle reaper scans.
//   - HistoryLimit: messages pushed for a history request or on join.
type Config struct {
	Addr         string
	MetricsAddr  string
	DataDir      string
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	HistoryLimit int
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":6000"
	c.MetricsAddr = ""
	c.DataDir = "data"
	c.IdleTimeout = 15 * time.Second
	c.ReapInterval = 5 * time.Second
	c.HistoryLimit = 500
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
