package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/lantern/internal/flagx"
	"github.com/dmitrijs2005/lantern/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "5s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerAddr        string         `json:"server_addr"`
	Username          string         `json:"username"`
	KeepaliveInterval timex.Duration `json:"keepalive_interval"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the file override earlier values. The session
// file path is derived from the config file's directory so that a
// relocated config carries its session along.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	cfg.SessionPath = sessionPathFor(jsonConfigFile)

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		// A missing config file is not an error, only an absent overlay.
		if os.IsNotExist(err) {
			return
		}
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerAddr != "" {
		cfg.ServerAddr = jc.ServerAddr
	}
	if jc.Username != "" {
		cfg.Username = jc.Username
	}
	if jc.KeepaliveInterval.Duration != 0 {
		cfg.KeepaliveInterval = time.Duration(jc.KeepaliveInterval.Duration)
	}
}

func sessionPathFor(configFile string) string {
	abs, err := filepath.Abs(configFile)
	if err != nil {
		abs = configFile
	}
	return filepath.Join(filepath.Dir(abs), sessionFileName)
}

func defaultSessionPath() string {
	return sessionPathFor("config.json")
}
