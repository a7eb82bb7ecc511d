package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/lantern/internal/flagx"
)

// parseEnv overlays Config with values from the environment.
//
// Supported variables:
//
//	LANTERN_SERVER   host:port of the chat server
func parseEnv(cfg *Config) {
	if v := os.Getenv("LANTERN_SERVER"); v != "" {
		cfg.ServerAddr = v
	}
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-s string   address and port of the chat server (default from Config)
//	-u string   username, overrides the saved session
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-s", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerAddr, "s", cfg.ServerAddr, "address and port of the chat server")
	fs.StringVar(&cfg.Username, "u", cfg.Username, "username (overrides saved session)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
