package config

import (
	"encoding/json"
	"os"

	"github.com/richmiles/in-the-event-of-my-death/internal/flagx"
	"github.com/richmiles/in-the-event-of-my-death/internal/timex"
)

// JsonConfig is the file form of Config. Keys missing from the file keep
// their current values.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	HealthAttempts int            `json:"health_attempts"`
	HealthDelay    timex.Duration `json:"health_delay"`
	UnlockAfter    timex.Duration `json:"unlock_after"`
	ExpireAfter    timex.Duration `json:"expire_after"`
	LogLevel       string         `json:"log_level"`
}

// parseJson overlays cfg with the file named by -c or -config in args.
// Read and decode errors panic.
func parseJson(cfg *Config, args []string) {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	jc := JsonConfig{
		ServerURL:      cfg.ServerURL,
		RequestTimeout: timex.Duration{Duration: cfg.RequestTimeout},
		HealthAttempts: cfg.HealthAttempts,
		HealthDelay:    timex.Duration{Duration: cfg.HealthDelay},
		UnlockAfter:    timex.Duration{Duration: cfg.UnlockAfter},
		ExpireAfter:    timex.Duration{Duration: cfg.ExpireAfter},
		LogLevel:       cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.RequestTimeout = jc.RequestTimeout.Duration
	cfg.HealthAttempts = jc.HealthAttempts
	cfg.HealthDelay = jc.HealthDelay.Duration
	cfg.UnlockAfter = jc.UnlockAfter.Duration
	cfg.ExpireAfter = jc.ExpireAfter.Duration
	cfg.LogLevel = jc.LogLevel
}
