// Package config loads the assistant configuration from a YAML file with
// ${ENV} expansion, falling back to environment variables for every
// credential so the binary can run with no file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	LLM      LLMConfig      `yaml:"llm"`
	Google   GoogleConfig   `yaml:"google"`
	Trello   TrelloConfig   `yaml:"trello"`
	Memory   MemoryConfig   `yaml:"memory"`
	Voice    VoiceConfig    `yaml:"voice"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`

	// DataDir holds the per-flow pending-state JSON files.
	DataDir string `yaml:"data_dir"`

	// Timezone is the IANA zone used for calendar resolution.
	Timezone string `yaml:"timezone"`
}

type ServerConfig struct {
	// MetricsAddr serves /metrics and /healthz, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`

	// WebhookURL enables webhook mode; empty means long polling.
	WebhookURL string `yaml:"webhook_url"`
	ListenAddr string `yaml:"listen_addr"`
}

type LLMConfig struct {
	// Provider selects "openai" or "anthropic".
	Provider string `yaml:"provider"`

	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

type GoogleConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RefreshToken string        `yaml:"refresh_token"`
	Timeout      time.Duration `yaml:"timeout"`
}

type TrelloConfig struct {
	APIKey  string        `yaml:"api_key"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type MemoryConfig struct {
	// PostgresURL selects the Postgres/Supabase backend when set.
	PostgresURL string `yaml:"postgres_url"`

	// SQLitePath is the local fallback database file.
	SQLitePath string `yaml:"sqlite_path"`

	// RecentTurns is how many turns feed the LLM context.
	RecentTurns int `yaml:"recent_turns"`

	// SummaryWindow is how many turns feed the long-term summary.
	SummaryWindow int `yaml:"summary_window"`
}

type VoiceConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	TTSWord string        `yaml:"tts_voice"`
	Timeout time.Duration `yaml:"timeout"`

	// OutputDir stores synthesized audio files. Default: os.TempDir().
	OutputDir string `yaml:"output_dir"`
}

type LimitsConfig struct {
	// MessagesPerWindow and Window define the per-user ingress budget.
	MessagesPerWindow int           `yaml:"messages_per_window"`
	Window            time.Duration `yaml:"window"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path, expands ${ENV} references and applies
// defaults. An empty path loads entirely from the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv fills credentials from the environment when the file left them empty.
func applyEnv(cfg *Config) {
	setIfEmpty(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setIfEmpty(&cfg.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setIfEmpty(&cfg.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setIfEmpty(&cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	setIfEmpty(&cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setIfEmpty(&cfg.Google.RefreshToken, "GOOGLE_REFRESH_TOKEN")
	setIfEmpty(&cfg.Trello.APIKey, "TRELLO_API_KEY")
	setIfEmpty(&cfg.Trello.Token, "TRELLO_TOKEN")
	setIfEmpty(&cfg.Memory.PostgresURL, "DATABASE_URL")
	setIfEmpty(&cfg.Timezone, "ASSISTANT_TIMEZONE")
	if v := os.Getenv("LOG_LEVEL"); v != "" && cfg.Logging.Level == "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" && cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" && cfg.Limits.MessagesPerWindow == 0 {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MessagesPerWindow = n
		}
	}
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9090"
	}
	if cfg.Telegram.ListenAddr == "" {
		cfg.Telegram.ListenAddr = ":8443"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.Google.Timeout == 0 {
		cfg.Google.Timeout = 20 * time.Second
	}
	if cfg.Trello.Timeout == 0 {
		cfg.Trello.Timeout = 15 * time.Second
	}
	if cfg.Voice.Timeout == 0 {
		cfg.Voice.Timeout = 30 * time.Second
	}
	if cfg.Voice.Model == "" {
		cfg.Voice.Model = "whisper-1"
	}
	if cfg.Voice.TTSWord == "" {
		cfg.Voice.TTSWord = "alloy"
	}
	if cfg.Voice.OutputDir == "" {
		cfg.Voice.OutputDir = os.TempDir()
	}
	if cfg.Memory.SQLitePath == "" {
		cfg.Memory.SQLitePath = "data/memory.db"
	}
	if cfg.Memory.RecentTurns == 0 {
		cfg.Memory.RecentTurns = 10
	}
	if cfg.Memory.SummaryWindow == 0 {
		cfg.Memory.SummaryWindow = 30
	}
	if cfg.Limits.MessagesPerWindow == 0 {
		cfg.Limits.MessagesPerWindow = 20
	}
	if cfg.Limits.Window == 0 {
		cfg.Limits.Window = time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Africa/Lagos"
	}
}

// Validate checks the fields required to actually serve traffic.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("openai api key is required for provider %q", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic api key is required for provider %q", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}
