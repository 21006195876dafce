// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.loombot/config.yaml or ./config.yaml)
//  3. Default values
//
// The Config value is built once at startup in cmd and passed by reference
// into every component constructor. No component reads ambient environment
// state directly.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidHistoryLimit indicates the history window size is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrInvalidMatchThreshold indicates the fuzzy acceptance threshold is out of range.
	ErrInvalidMatchThreshold = errors.New("invalid match threshold")

	// ErrNoEquipment indicates the canonical equipment list is empty.
	ErrNoEquipment = errors.New("equipment list is empty")

	// ErrInvalidTicketURL indicates the ticketing API base URL is missing or malformed.
	ErrInvalidTicketURL = errors.New("invalid ticketing API URL")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Defaults that downstream components rely on.
const (
	// DefaultHistoryLimit is the conversation window kept per session,
	// counted in messages. A user message and the assistant's reply
	// count as two.
	DefaultHistoryLimit = 20

	// DefaultMatchThreshold is the fuzzy score (0-100) at or above which an
	// equipment reference is accepted as resolved.
	DefaultMatchThreshold = 80

	// DefaultRetrievalTopK is the number of documentation passages returned
	// by a retrieval query.
	DefaultRetrievalTopK = 3
)

// TicketConfig configures the external service-order (Dude) API client.
type TicketConfig struct {
	BaseURL   string `mapstructure:"base_url" json:"base_url"`
	APIKey    string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	TimeoutMs int    `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// EntityConfig holds the canonical reference lists used by the entity
// resolver. Loaded once at startup and treated as immutable afterwards.
type EntityConfig struct {
	// Machines are canonical equipment names as stored in the live-status
	// tables.
	Machines []string `mapstructure:"machines" json:"machines"`

	// TicketMachines are the same machines in the form the ticketing API
	// expects (its own formatting of the names).
	TicketMachines []string `mapstructure:"ticket_machines" json:"ticket_machines"`

	// OrderStatuses is the closed set of service-order statuses.
	OrderStatuses []string `mapstructure:"order_statuses" json:"order_statuses"`
}

// PollConfig holds the two poll cadences of the system.
type PollConfig struct {
	// MessageIntervalMs is the delay between message-source polls inside a
	// session. Sub-second by design: users are waiting for an answer.
	MessageIntervalMs int `mapstructure:"message_interval_ms" json:"message_interval_ms"`

	// UserIntervalS is the delay between user-directory enumeration cycles
	// in the supervisor.
	UserIntervalS int `mapstructure:"user_interval_s" json:"user_interval_s"`
}

// TracingConfig configures optional OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`       // "openai" (default), "gemini", "ollama"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`   // e.g. "gpt-4o", "gemini-2.5-flash"
	// EmbedderModel must emit vectors matching the width of the
	// documents.embedding column, vector(1536).
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"` // e.g. "text-embedding-3-small"
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTurns      int     `mapstructure:"max_turns" json:"max_turns"` // agentic loop bound per user turn
	PromptDir     string  `mapstructure:"prompt_dir" json:"prompt_dir"`
	OllamaHost    string  `mapstructure:"ollama_host" json:"ollama_host"`

	// Agent behavior
	HistoryLimit   int `mapstructure:"history_limit" json:"history_limit"`
	MatchThreshold int `mapstructure:"match_threshold" json:"match_threshold"`
	RetrievalTopK  int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	TurnTimeoutS   int `mapstructure:"turn_timeout_s" json:"turn_timeout_s"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Subsystem configuration
	Ticket   TicketConfig  `mapstructure:"ticket" json:"ticket"`
	Entities EntityConfig  `mapstructure:"entities" json:"entities"`
	Poll     PollConfig    `mapstructure:"poll" json:"poll"`
	Tracing  TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".loombot")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults. The original deployment ran on OpenAI models.
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model_name", "gpt-4o")
	v.SetDefault("embedder_model", "text-embedding-3-small")
	v.SetDefault("temperature", 0.0)
	v.SetDefault("max_turns", 5)
	v.SetDefault("prompt_dir", "prompts")
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Agent behavior
	v.SetDefault("history_limit", DefaultHistoryLimit)
	v.SetDefault("match_threshold", DefaultMatchThreshold)
	v.SetDefault("retrieval_top_k", DefaultRetrievalTopK)
	v.SetDefault("turn_timeout_s", 120)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "loombot")
	v.SetDefault("postgres_password", "loombot_dev_password")
	v.SetDefault("postgres_db_name", "loombot")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Ticketing API defaults
	v.SetDefault("ticket.base_url", "")
	v.SetDefault("ticket.timeout_ms", 30000)

	// Canonical entity lists. Production deployments override these in the
	// config file with the full plant inventory.
	v.SetDefault("entities.machines", DefaultMachines)
	v.SetDefault("entities.ticket_machines", DefaultTicketMachines)
	v.SetDefault("entities.order_statuses", DefaultOrderStatuses)

	// Poll cadences
	v.SetDefault("poll.message_interval_ms", 500)
	v.SetDefault("poll.user_interval_s", 60)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.agent_host", "localhost:4318")
	v.SetDefault("tracing.service_name", "loombot")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly.
// API keys for LLM providers (OPENAI_API_KEY, GEMINI_API_KEY) are read by the
// Genkit plugins themselves, not through viper.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "LOOMBOT_PROVIDER")
	mustBind("model_name", "LOOMBOT_MODEL_NAME")
	mustBind("ollama_host", "LOOMBOT_OLLAMA_HOST")
	mustBind("ticket.base_url", "LOOMBOT_TICKET_URL")
	mustBind("ticket.api_key", "LOOMBOT_TICKET_API_KEY")
	mustBind("postgres_password", "LOOMBOT_POSTGRES_PASSWORD")
}

// TurnTimeout returns the per-turn deadline as a duration.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutS) * time.Second
}

// MessagePollInterval returns the session poll cadence as a duration.
func (c *Config) MessagePollInterval() time.Duration {
	return time.Duration(c.Poll.MessageIntervalMs) * time.Millisecond
}

// UserPollInterval returns the supervisor poll cadence as a duration.
func (c *Config) UserPollInterval() time.Duration {
	return time.Duration(c.Poll.UserIntervalS) * time.Second
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked; longer ones keep two characters at each end for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.Ticket.APIKey = maskSecret(a.Ticket.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "openai/gpt-4o", "googleai/gemini-2.5-flash", "ollama/llama3.3".
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderGemini, ProviderGoogleAI:
		return ProviderGoogleAI + "/" + c.ModelName
	default:
		return ProviderOpenAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
