package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/lantern/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   chat listener bind address (e.g., ":6000")
//	-m string   Prometheus endpoint address ("" disables)
//	-d string   data directory for the JSON snapshots
//	-t int      idle timeout, seconds
//	-r int      reap interval, seconds
//	-l int      history limit, messages
//
// Only the flags handled here are parsed; flagx.FilterArgs keeps them from
// colliding with flags owned by other packages.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-d", "-t", "-r", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Addr, "a", config.Addr, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics endpoint address")
	fs.StringVar(&config.DataDir, "d", config.DataDir, "data directory")

	idleTimeout := fs.Int("t", int(config.IdleTimeout.Seconds()), "idle timeout (in seconds)")
	reapInterval := fs.Int("r", int(config.ReapInterval.Seconds()), "reap interval (in seconds)")
	fs.IntVar(&config.HistoryLimit, "l", config.HistoryLimit, "history limit (messages)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.IdleTimeout = time.Duration(*idleTimeout) * time.Second
	config.ReapInterval = time.Duration(*reapInterval) * time.Second
}
