// Package config loads intake daemon settings from a JSONC file or the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/jsonc"
)

// Provider types.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the top-level intake configuration.
type Config struct {
	Slack    SlackConfig    `json:"slack"`
	Provider ProviderConfig `json:"provider"`
	Linear   LinearConfig   `json:"linear"`
	Intake   IntakeConfig   `json:"intake"`
	Ledger   LedgerConfig   `json:"ledger"`
	API      APIConfig      `json:"api"`
}

// SlackConfig holds Socket Mode credentials.
type SlackConfig struct {
	BotToken string `json:"bot_token"` // xoxb-...
	AppToken string `json:"app_token"` // xapp-...
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type            string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url,omitempty"`
	Model           string `json:"model,omitempty"`
	ExtractionModel string `json:"extraction_model,omitempty"` // defaults to Model
}

// LinearConfig holds issue tracker settings.
type LinearConfig struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint,omitempty"`
}

// IntakeConfig is the static behavior block.
type IntakeConfig struct {
	TeamKey        string   `json:"team_key"`
	FeatureChannel string   `json:"feature_channel"`
	SummaryChannel string   `json:"summary_channel"`
	TimeZone       string   `json:"time_zone"`
	DigestSchedule string   `json:"digest_schedule"`
	IdleTimeout    Duration `json:"idle_timeout"` // zero disables eviction
	SweepSchedule  string   `json:"sweep_schedule"`
	BotName        string   `json:"bot_name,omitempty"`
}

// LedgerConfig holds the filing ledger location. An empty path disables it.
type LedgerConfig struct {
	Path string `json:"path,omitempty"`
}

// APIConfig holds operator API settings. Port 0 disables the server.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Duration is a time.Duration that reads from JSON as "24h" or as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string like \"24h\" or seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a config with the static block filled in.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Type: ProviderAnthropic},
		Intake: IntakeConfig{
			TeamKey:        "KDE",
			FeatureChannel: "kde-product-requests",
			SummaryChannel: "well-do-it-live",
			TimeZone:       "America/Chicago",
			DigestSchedule: "0 9 * * *",
			IdleTimeout:    Duration(24 * time.Hour),
			SweepSchedule:  "@every 10m",
			BotName:        "Jarrod",
		},
		API: APIConfig{Host: "0.0.0.0"},
	}
}

// Load reads configuration from a JSON file. Comments and trailing commas are
// allowed. Secrets missing from the file are taken from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applySecretEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds the config from environment variables. Non-secret
// settings use the INTAKE_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	cfg.Provider.Type = getenv("INTAKE_PROVIDER", "")
	cfg.Provider.BaseURL = os.Getenv("INTAKE_PROVIDER_BASE_URL")
	cfg.Provider.Model = os.Getenv("INTAKE_MODEL")
	cfg.Provider.ExtractionModel = os.Getenv("INTAKE_EXTRACTION_MODEL")
	cfg.Linear.Endpoint = os.Getenv("INTAKE_LINEAR_ENDPOINT")

	in := &cfg.Intake
	in.TeamKey = getenv("INTAKE_TEAM_KEY", in.TeamKey)
	in.FeatureChannel = getenv("INTAKE_FEATURE_CHANNEL", in.FeatureChannel)
	in.SummaryChannel = getenv("INTAKE_SUMMARY_CHANNEL", in.SummaryChannel)
	in.TimeZone = getenv("INTAKE_TIME_ZONE", in.TimeZone)
	in.DigestSchedule = getenv("INTAKE_DIGEST_SCHEDULE", in.DigestSchedule)
	in.SweepSchedule = getenv("INTAKE_SWEEP_SCHEDULE", in.SweepSchedule)
	in.BotName = getenv("INTAKE_BOT_NAME", in.BotName)
	if v := os.Getenv("INTAKE_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: INTAKE_IDLE_TIMEOUT: %w", err)
		}
		in.IdleTimeout = Duration(d)
	}

	cfg.Ledger.Path = os.Getenv("INTAKE_LEDGER_PATH")
	cfg.API.Host = getenv("INTAKE_API_HOST", cfg.API.Host)
	cfg.API.Port = getenvInt("INTAKE_API_PORT", 0)
	cfg.API.Key = os.Getenv("INTAKE_API_KEY")

	cfg.applySecretEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecretEnv fills empty credentials from their conventional variables.
func (c *Config) applySecretEnv() {
	if c.Slack.BotToken == "" {
		c.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if c.Slack.AppToken == "" {
		c.Slack.AppToken = os.Getenv("SLACK_APP_TOKEN")
	}
	if c.Linear.APIKey == "" {
		c.Linear.APIKey = os.Getenv("LINEAR_API_KEY")
	}

	if c.Provider.Type == "" {
		c.Provider.Type = ProviderAnthropic
		if os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") != "" {
			c.Provider.Type = ProviderOpenAI
		}
	}
	if c.Provider.APIKey == "" {
		switch c.Provider.Type {
		case ProviderAnthropic:
			c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderOpenAI:
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// Location loads the configured time zone.
func (c *IntakeConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("config: time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token is required (or SLACK_BOT_TOKEN)")
	} else if !strings.HasPrefix(c.Slack.BotToken, "xoxb-") {
		errs = append(errs, "slack.bot_token must be a bot token (xoxb-...)")
	}
	if c.Slack.AppToken == "" {
		errs = append(errs, "slack.app_token is required (or SLACK_APP_TOKEN)")
	} else if !strings.HasPrefix(c.Slack.AppToken, "xapp-") {
		errs = append(errs, "slack.app_token must be an app-level token (xapp-...)")
	}

	switch c.Provider.Type {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q is not one of anthropic, openai", c.Provider.Type))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required (or ANTHROPIC_API_KEY / OPENAI_API_KEY)")
	}
	if c.Linear.APIKey == "" {
		errs = append(errs, "linear.api_key is required (or LINEAR_API_KEY)")
	}

	in := c.Intake
	if in.TeamKey == "" {
		errs = append(errs, "intake.team_key is required")
	}
	if in.FeatureChannel == "" {
		errs = append(errs, "intake.feature_channel is required")
	}
	if in.SummaryChannel == "" {
		errs = append(errs, "intake.summary_channel is required")
	}
	if _, err := in.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("intake.time_zone %q is not a known zone", in.TimeZone))
	}
	if _, err := cron.ParseStandard(in.DigestSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("intake.digest_schedule %q: %v", in.DigestSchedule, err))
	}
	if in.IdleTimeout < 0 {
		errs = append(errs, "intake.idle_timeout must not be negative")
	}
	if in.IdleTimeout > 0 {
		if _, err := cron.ParseStandard(in.SweepSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("intake.sweep_schedule %q: %v", in.SweepSchedule, err))
		}
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
