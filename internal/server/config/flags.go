package config

import (
	"flag"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN
//	-l string   log level (debug, info, warn, error)
//	-k string   internal JWT signing key
//	-i int      cleanup interval, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w string   alert webhook URL
//
// args is filtered with flagx.FilterArgs first, so flags owned by other
// components are ignored. Invalid values panic.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-l", "-k", "-i", "-u", "-p", "-b", "-g", "-e", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.InternalSigningKey, "k", config.InternalSigningKey, "internal signing key")

	cleanupInterval := fs.Int("i", int(config.CleanupInterval.Minutes()), "cleanup interval (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.AlertWebhookURL, "w", config.AlertWebhookURL, "alert webhook URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// only an explicit -i overrides, so sub-minute intervals from JSON survive
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			config.CleanupInterval = time.Duration(*cleanupInterval) * time.Minute
		}
	})
}
