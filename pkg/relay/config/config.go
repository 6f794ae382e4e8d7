// Package config loads the relay's settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NotifyOn selects when the CRM notification fires.
type NotifyOn string

const (
	NotifyOnSessionClose NotifyOn = "session_close"
	NotifyOnCallAnalyzed NotifyOn = "call_analyzed"
	NotifyOnBoth         NotifyOn = "both"
)

// Parameter names read from SSM under SANTA_RELAY_SSM_PREFIX.
const (
	SecretOpenAIAPIKey    = "openai-api-key"
	SecretAnthropicAPIKey = "anthropic-api-key"
	SecretGeminiAPIKey    = "gemini-api-key"
	SecretRetellAPIKey    = "retell-api-key"
)

type Config struct {
	Addr string

	// Persona selection. PersonaFile, when set, replaces the catalog entry.
	Persona     string
	PersonaFile string
	Model       string

	OpenAIAPIKey       string
	OpenAIOrganization string
	AnthropicAPIKey    string
	GeminiAPIKey       string

	RetellAPIKey     string
	RetellBaseURL    string
	WebhookTolerance time.Duration

	// CRM webhook. Empty NotifyURL disables notifications.
	NotifyURL     string
	NotifyTimeout time.Duration
	NotifyOn      NotifyOn

	// Call session
	CallDetailsTimeout time.Duration
	TurnTimeout        time.Duration
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSReadTimeout      time.Duration
	MaxMessageBytes    int64
	OutboundQueueSize  int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration

	SSMPrefix string

	LogLevel  slog.Level
	LogFormat string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("SANTA_RELAY_ADDR", ":8080"),
		Persona:                       envOr("SANTA_RELAY_PERSONA", "classic"),
		PersonaFile:                   envOr("SANTA_RELAY_PERSONA_FILE", ""),
		Model:                         envOr("SANTA_RELAY_MODEL", ""),
		OpenAIAPIKey:                  envOr("OPENAI_API_KEY", ""),
		OpenAIOrganization:            envOr("OPENAI_ORGANIZATION_ID", ""),
		AnthropicAPIKey:               envOr("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:                  envOr("GEMINI_API_KEY", ""),
		RetellAPIKey:                  envOr("RETELL_API_KEY", ""),
		RetellBaseURL:                 envOr("SANTA_RELAY_RETELL_BASE_URL", "https://api.retellai.com"),
		WebhookTolerance:              envDurationOr("SANTA_RELAY_WEBHOOK_TOLERANCE", 5*time.Minute),
		NotifyURL:                     envOr("SANTA_RELAY_NOTIFY_URL", ""),
		NotifyTimeout:                 envDurationOr("SANTA_RELAY_NOTIFY_TIMEOUT", 10*time.Second),
		NotifyOn:                      NotifyOn(strings.ToLower(envOr("SANTA_RELAY_NOTIFY_ON", string(NotifyOnSessionClose)))),
		CallDetailsTimeout:            envDurationOr("SANTA_RELAY_CALL_DETAILS_TIMEOUT", 5*time.Second),
		TurnTimeout:                   envDurationOr("SANTA_RELAY_TURN_TIMEOUT", 60*time.Second),
		WSPingInterval:                envDurationOr("SANTA_RELAY_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:                envDurationOr("SANTA_RELAY_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:                 envDurationOr("SANTA_RELAY_WS_READ_TIMEOUT", 0),
		MaxMessageBytes:               envInt64Or("SANTA_RELAY_MAX_MESSAGE_BYTES", 1<<20), // 1 MiB
		OutboundQueueSize:             envIntOr("SANTA_RELAY_OUTBOUND_QUEUE_SIZE", 256),
		ReadHeaderTimeout:             envDurationOr("SANTA_RELAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:           envDurationOr("SANTA_RELAY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("SANTA_RELAY_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("SANTA_RELAY_UPSTREAM_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
		SSMPrefix:                     strings.TrimRight(envOr("SANTA_RELAY_SSM_PREFIX", ""), "/"),
		LogFormat:                     strings.ToLower(envOr("SANTA_RELAY_LOG_FORMAT", "text")),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOr("SANTA_RELAY_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("SANTA_RELAY_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("SANTA_RELAY_LOG_FORMAT must be one of text|json")
	}
	switch cfg.NotifyOn {
	case NotifyOnSessionClose, NotifyOnCallAnalyzed, NotifyOnBoth:
	default:
		return Config{}, fmt.Errorf("SANTA_RELAY_NOTIFY_ON must be one of session_close|call_analyzed|both")
	}

	if cfg.Model != "" && !strings.Contains(cfg.Model, "/") {
		return Config{}, fmt.Errorf("SANTA_RELAY_MODEL must be provider/model")
	}
	if strings.TrimSpace(cfg.RetellBaseURL) == "" {
		return Config{}, fmt.Errorf("SANTA_RELAY_RETELL_BASE_URL must not be empty")
	}
	if cfg.WebhookTolerance <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_WEBHOOK_TOLERANCE must be > 0")
	}
	if cfg.NotifyTimeout <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_NOTIFY_TIMEOUT must be > 0")
	}
	if cfg.CallDetailsTimeout < 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_CALL_DETAILS_TIMEOUT must be >= 0")
	}
	if cfg.TurnTimeout < 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_TURN_TIMEOUT must be >= 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SANTA_RELAY_UPSTREAM_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	return cfg, nil
}

// SecretNames lists the SSM parameters whose values are still missing.
func (c Config) SecretNames() []string {
	var out []string
	for name, v := range c.secretFields() {
		if strings.TrimSpace(*v) == "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ApplySecrets fills empty credentials from values keyed by parameter
// name. Values already set in the environment win.
func (c *Config) ApplySecrets(values map[string]string) {
	for name, field := range c.secretFields() {
		if strings.TrimSpace(*field) != "" {
			continue
		}
		if v := strings.TrimSpace(values[name]); v != "" {
			*field = v
		}
	}
}

func (c *Config) secretFields() map[string]*string {
	return map[string]*string{
		SecretOpenAIAPIKey:    &c.OpenAIAPIKey,
		SecretAnthropicAPIKey: &c.AnthropicAPIKey,
		SecretGeminiAPIKey:    &c.GeminiAPIKey,
		SecretRetellAPIKey:    &c.RetellAPIKey,
	}
}

// NotifiesOnClose reports whether session close should notify the CRM.
func (c Config) NotifiesOnClose() bool {
	return c.NotifyURL != "" && (c.NotifyOn == NotifyOnSessionClose || c.NotifyOn == NotifyOnBoth)
}

// NotifiesOnAnalyzed reports whether call_analyzed webhooks notify the CRM.
func (c Config) NotifiesOnAnalyzed() bool {
	return c.NotifyURL != "" && (c.NotifyOn == NotifyOnCallAnalyzed || c.NotifyOn == NotifyOnBoth)
}

// Issues lists problems that keep the relay from serving calls correctly.
// provider is the provider prefix of the active persona model.
func (c Config) Issues(provider string) []string {
	var out []string
	switch provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			out = append(out, "OPENAI_API_KEY is not set")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			out = append(out, "ANTHROPIC_API_KEY is not set")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			out = append(out, "GEMINI_API_KEY is not set")
		}
	default:
		out = append(out, fmt.Sprintf("unsupported model provider %q", provider))
	}
	if c.RetellAPIKey == "" {
		out = append(out, "RETELL_API_KEY is not set")
	}
	return out
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
