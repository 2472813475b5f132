package config

import (
	"encoding/json"
	"os"

	"github.com/richmiles/in-the-event-of-my-death/internal/flagx"
	"github.com/richmiles/in-the-event-of-my-death/internal/timex"
)

// JsonTier is the file form of Tier.
type JsonTier struct {
	MaxCiphertextSize int64 `json:"max_ciphertext_size"`
	MaxExpiryDays     int   `json:"max_expiry_days"`
}

// JsonConfig is the file form of Config. Durations use timex.Duration so
// both "15m" and integer nanoseconds are accepted. Keys missing from the
// file keep their current values.
type JsonConfig struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseDSN string `json:"database_dsn"`
	LogLevel    string `json:"log_level"`

	PowBaseDifficulty int            `json:"pow_base_difficulty"`
	PowSizeStep       int64          `json:"pow_size_step"`
	PowMaxSizeBonus   int            `json:"pow_max_size_bonus"`
	PowChallengeTTL   timex.Duration `json:"pow_challenge_ttl"`

	MaxCiphertextSize int64          `json:"max_ciphertext_size"`
	MinUnlock         timex.Duration `json:"min_unlock"`
	MaxUnlock         timex.Duration `json:"max_unlock"`
	MaxExpiry         timex.Duration `json:"max_expiry"`
	MinExpiryGap      timex.Duration `json:"min_expiry_gap"`

	CapabilityTiers         map[string]JsonTier `json:"capability_tiers"`
	CapabilityTokenValidity timex.Duration      `json:"capability_token_validity"`

	CleanupInterval    timex.Duration `json:"cleanup_interval"`
	InternalSigningKey string         `json:"internal_signing_key"`

	ObjectStorageEnabled bool   `json:"object_storage_enabled"`
	InlinePayloadLimit   int64  `json:"inline_payload_limit"`
	S3RootUser           string `json:"s3_root_user"`
	S3RootPassword       string `json:"s3_root_password"`
	S3Bucket             string `json:"s3_bucket"`
	S3Region             string `json:"s3_region"`
	S3BaseEndpoint       string `json:"s3_base_endpoint"`

	AlertWebhookURL    string         `json:"alert_webhook_url"`
	AlertCooldown      timex.Duration `json:"alert_cooldown"`
	FeedbackWebhookURL string         `json:"feedback_webhook_url"`

	RateLimitChallenges int `json:"rate_limit_challenges"`
	RateLimitCreates    int `json:"rate_limit_creates"`
	RateLimitRetrieves  int `json:"rate_limit_retrieves"`
}

func toJson(c *Config) *JsonConfig {
	tiers := make(map[string]JsonTier, len(c.CapabilityTiers))
	for k, t := range c.CapabilityTiers {
		tiers[k] = JsonTier{MaxCiphertextSize: t.MaxCiphertextSize, MaxExpiryDays: t.MaxExpiryDays}
	}

	return &JsonConfig{
		HTTPAddr:                c.HTTPAddr,
		DatabaseDSN:             c.DatabaseDSN,
		LogLevel:                c.LogLevel,
		PowBaseDifficulty:       c.PowBaseDifficulty,
		PowSizeStep:             c.PowSizeStep,
		PowMaxSizeBonus:         c.PowMaxSizeBonus,
		PowChallengeTTL:         timex.Duration{Duration: c.PowChallengeTTL},
		MaxCiphertextSize:       c.MaxCiphertextSize,
		MinUnlock:               timex.Duration{Duration: c.MinUnlock},
		MaxUnlock:               timex.Duration{Duration: c.MaxUnlock},
		MaxExpiry:               timex.Duration{Duration: c.MaxExpiry},
		MinExpiryGap:            timex.Duration{Duration: c.MinExpiryGap},
		CapabilityTiers:         tiers,
		CapabilityTokenValidity: timex.Duration{Duration: c.CapabilityTokenValidity},
		CleanupInterval:         timex.Duration{Duration: c.CleanupInterval},
		InternalSigningKey:      c.InternalSigningKey,
		ObjectStorageEnabled:    c.ObjectStorageEnabled,
		InlinePayloadLimit:      c.InlinePayloadLimit,
		S3RootUser:              c.S3RootUser,
		S3RootPassword:          c.S3RootPassword,
		S3Bucket:                c.S3Bucket,
		S3Region:                c.S3Region,
		S3BaseEndpoint:          c.S3BaseEndpoint,
		AlertWebhookURL:         c.AlertWebhookURL,
		AlertCooldown:           timex.Duration{Duration: c.AlertCooldown},
		FeedbackWebhookURL:      c.FeedbackWebhookURL,
		RateLimitChallenges:     c.RateLimitChallenges,
		RateLimitCreates:        c.RateLimitCreates,
		RateLimitRetrieves:      c.RateLimitRetrieves,
	}
}

func (j *JsonConfig) apply(c *Config) {
	tiers := make(map[string]Tier, len(j.CapabilityTiers))
	for k, t := range j.CapabilityTiers {
		tiers[k] = Tier{MaxCiphertextSize: t.MaxCiphertextSize, MaxExpiryDays: t.MaxExpiryDays}
	}

	c.HTTPAddr = j.HTTPAddr
	c.DatabaseDSN = j.DatabaseDSN
	c.LogLevel = j.LogLevel
	c.PowBaseDifficulty = j.PowBaseDifficulty
	c.PowSizeStep = j.PowSizeStep
	c.PowMaxSizeBonus = j.PowMaxSizeBonus
	c.PowChallengeTTL = j.PowChallengeTTL.Duration
	c.MaxCiphertextSize = j.MaxCiphertextSize
	c.MinUnlock = j.MinUnlock.Duration
	c.MaxUnlock = j.MaxUnlock.Duration
	c.MaxExpiry = j.MaxExpiry.Duration
	c.MinExpiryGap = j.MinExpiryGap.Duration
	c.CapabilityTiers = tiers
	c.CapabilityTokenValidity = j.CapabilityTokenValidity.Duration
	c.CleanupInterval = j.CleanupInterval.Duration
	c.InternalSigningKey = j.InternalSigningKey
	c.ObjectStorageEnabled = j.ObjectStorageEnabled
	c.InlinePayloadLimit = j.InlinePayloadLimit
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.AlertWebhookURL = j.AlertWebhookURL
	c.AlertCooldown = j.AlertCooldown.Duration
	c.FeedbackWebhookURL = j.FeedbackWebhookURL
	c.RateLimitChallenges = j.RateLimitChallenges
	c.RateLimitCreates = j.RateLimitCreates
	c.RateLimitRetrieves = j.RateLimitRetrieves
}

// parseJson overlays the JSON file named by -c/-config onto config. The
// file is decoded on top of the current values, so absent keys are kept.
// A capability_tiers object replaces the whole tier table.
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.JSONConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	c.CapabilityTiers = nil
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	if c.CapabilityTiers == nil {
		c.CapabilityTiers = toJson(config).CapabilityTiers
	}

	c.apply(config)
}
