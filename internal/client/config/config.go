package config

import "time"

// Config holds runtime settings for the API client.
type Config struct {
	ServerURL      string
	RequestTimeout time.Duration
	HealthAttempts int
	HealthDelay    time.Duration
	UnlockAfter    time.Duration
	ExpireAfter    time.Duration
	LogLevel       string
	HealthOnly     bool
}

// LoadDefaults populates c with values suitable for a local server.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.RequestTimeout = 30 * time.Second
	c.HealthAttempts = 30
	c.HealthDelay = 2 * time.Second
	c.UnlockAfter = 24 * time.Hour
	c.ExpireAfter = 7 * 24 * time.Hour
	c.LogLevel = "info"
}

// LoadConfig applies defaults, then the JSON file named by -c/-config, then
// flags. Later sources win.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
