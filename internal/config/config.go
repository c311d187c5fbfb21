package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultMailshakeBaseURL = "https://api.mailshake.com/2017-04-01"

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// Enabled reports whether the limit should be enforced.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && r.Interval > 0
}

// MailshakeConfig holds credentials and pacing for the delivery API.
type MailshakeConfig struct {
	APIKey            string
	BaseURL           string
	DefaultCampaignID string
	RateLimit         RateLimitConfig
	PollAttempts      int
	PollInterval      time.Duration
}

// DatabasePoolConfig sizes the pgx pool. Zero values mean the database package defaults.
type DatabasePoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Config aggregates application-wide configuration values.
type Config struct {
	DatabaseURL      string
	DatabasePool     DatabasePoolConfig
	Port             string
	LogLevel         string
	Delay            time.Duration
	MaxAttempts      int
	DispatchSchedule string
	ProfileCampaigns map[string]string
	PhoneRegion      string
	RateLimitWebhook RateLimitConfig
	ShutdownTimeout  time.Duration
	Mailshake        MailshakeConfig
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabasePool: DatabasePoolConfig{
			MaxConns:        parsePositiveInt(getEnv("DB_MAX_CONNS", "8"), 8),
			MinConns:        parseNonNegativeInt(getEnv("DB_MIN_CONNS", "0")),
			MaxConnLifetime: parseDuration(getEnv("DB_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime: parseDuration(getEnv("DB_MAX_CONN_IDLE_TIME", "15m"), 15*time.Minute),
		},
		Port:             getEnv("PORT", "3000"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Delay:            parseDelayHours(getEnv("DELAY_HOURS", "48")),
		MaxAttempts:      parsePositiveInt(getEnv("MAX_ATTEMPTS", "3"), 3),
		DispatchSchedule: getEnv("DISPATCH_SCHEDULE", "*/5 * * * *"),
		PhoneRegion:      strings.ToUpper(getEnv("PHONE_REGION", "US")),
		ShutdownTimeout:  parseDuration(getEnv("SHUTDOWN_TIMEOUT", "3m"), 3*time.Minute),
		Mailshake: MailshakeConfig{
			APIKey:            os.Getenv("MAILSHAKE_API_KEY"),
			BaseURL:           strings.TrimRight(getEnv("MAILSHAKE_BASE_URL", defaultMailshakeBaseURL), "/"),
			DefaultCampaignID: strings.TrimSpace(os.Getenv("MAILSHAKE_CAMPAIGN_ID")),
			PollAttempts:      parsePositiveInt(getEnv("POLL_ATTEMPTS", "5"), 5),
			PollInterval:      parseDuration(getEnv("POLL_INTERVAL", "30s"), 30*time.Second),
		},
	}

	if _, err := cron.ParseStandard(cfg.DispatchSchedule); err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_SCHEDULE value: %w", err)
	}

	rl, err := parseRateLimit(getEnv("RATE_LIMIT_WEBHOOK", "120/min"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WEBHOOK value: %w", err)
	}
	cfg.RateLimitWebhook = rl

	if raw := strings.TrimSpace(os.Getenv("MAILSHAKE_RATE_LIMIT")); raw != "" {
		msRate, err := parseRateLimit(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid MAILSHAKE_RATE_LIMIT value: %w", err)
		}
		cfg.Mailshake.RateLimit = msRate
	}

	campaigns, err := parseProfileCampaigns(os.Getenv("PROFILE_CAMPAIGNS"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROFILE_CAMPAIGNS value: %w", err)
	}
	cfg.ProfileCampaigns = campaigns

	return cfg, nil
}

func parseRateLimit(value string) (RateLimitConfig, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, fmt.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, fmt.Errorf("invalid request count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	default:
		return RateLimitConfig{}, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

// parseProfileCampaigns reads "profile=campaign,profile=campaign" pairs.
// Profiles are case-insensitive and stored lower-cased.
func parseProfileCampaigns(value string) (map[string]string, error) {
	out := make(map[string]string)
	value = strings.TrimSpace(value)
	if value == "" {
		return out, nil
	}

	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		profile, campaign, ok := strings.Cut(pair, "=")
		profile = strings.ToLower(strings.TrimSpace(profile))
		campaign = strings.TrimSpace(campaign)
		if !ok || profile == "" || campaign == "" {
			return nil, fmt.Errorf("expected <profile>=<campaign>, got %q", pair)
		}
		if _, dup := out[profile]; dup {
			return nil, fmt.Errorf("duplicate profile %q", profile)
		}
		out[profile] = campaign
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseDuration(input string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(input)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// parseDelayHours accepts fractional hours; zero or garbage means the 48h default.
func parseDelayHours(input string) time.Duration {
	hours, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || hours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(hours * float64(time.Hour))
}

func parseNonNegativeInt(input string) int {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parsePositiveInt(input string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
