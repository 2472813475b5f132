package config

import (
	"flag"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   base URL of the server (e.g., "https://example.com")
//	-t int      per-request timeout, seconds
//	-n int      health check attempts
//	-l string   log level
//	-health-only     stop after the health check
//
// Unknown flags are filtered out with flagx.FilterArgs. Invalid values panic.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-t", "-n", "-l", "-health-only"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.IntVar(&cfg.HealthAttempts, "n", cfg.HealthAttempts, "health check attempts")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.HealthOnly, "health-only", cfg.HealthOnly, "only wait for the health check")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		}
	})
}
