package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/lantern/internal/flagx"
	"github.com/dmitrijs2005/lantern/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Interval fields
// use timex.Duration so both "15s" strings and integer nanoseconds parse.
type JsonConfig struct {
	Addr         string         `json:"addr"`
	MetricsAddr  string         `json:"metrics_addr"`
	DataDir      string         `json:"data_dir"`
	IdleTimeout  timex.Duration `json:"idle_timeout"`
	ReapInterval timex.Duration `json:"reap_interval"`
	HistoryLimit int            `json:"history_limit"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags, if given. Fields absent from the file keep their
// current values. A file that cannot be read or parsed panics: a broken
// operator config should not start a half-configured server.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.Addr != "" {
		config.Addr = c.Addr
	}
	if c.MetricsAddr != "" {
		config.MetricsAddr = c.MetricsAddr
	}
	if c.DataDir != "" {
		config.DataDir = c.DataDir
	}
	if c.IdleTimeout.Duration != 0 {
		config.IdleTimeout = c.IdleTimeout.Duration
	}
	if c.ReapInterval.Duration != 0 {
		config.ReapInterval = c.ReapInterval.Duration
	}
	if c.HistoryLimit != 0 {
		config.HistoryLimit = c.HistoryLimit
	}
}
