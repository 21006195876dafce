package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a Config that passes Validate, for mutation in tests.
func validConfig() *Config {
	return &Config{
		Provider:       ProviderOpenAI,
		ModelName:      "gpt-4o",
		EmbedderModel:  "text-embedding-3-small",
		PostgresHost:   "localhost",
		PostgresPort:   5432,
		PostgresUser:   "loombot",
		PostgresDBName: "loombot",
		PostgresSSLMode: "disable",
		HistoryLimit:   DefaultHistoryLimit,
		MatchThreshold: DefaultMatchThreshold,
		RetrievalTopK:  DefaultRetrievalTopK,
		Entities: EntityConfig{
			Machines:       DefaultMachines,
			TicketMachines: DefaultTicketMachines,
			OrderStatuses:  DefaultOrderStatuses,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"nil provider", func(c *Config) { c.Provider = "" }, ErrInvalidProvider},
		{"unknown provider", func(c *Config) { c.Provider = "anthropic" }, ErrInvalidProvider},
		{"empty model", func(c *Config) { c.ModelName = "  " }, ErrInvalidModelName},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port too high", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"port zero", func(c *Config) { c.PostgresPort = 0 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"history too small", func(c *Config) { c.HistoryLimit = 1 }, ErrInvalidHistoryLimit},
		{"threshold too big", func(c *Config) { c.MatchThreshold = 101 }, ErrInvalidMatchThreshold},
		{"no machines", func(c *Config) { c.Entities.Machines = nil }, ErrNoEquipment},
		{"bad ticket url", func(c *Config) { c.Ticket.BaseURL = "dude.example.com" }, ErrInvalidTicketURL},
		{"good ticket url", func(c *Config) { c.Ticket.BaseURL = "https://dude.example.com/api" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("Validate() on nil = %v, want ErrConfigNil", err)
	}
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "with space"

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, "password='with space'") {
		t.Errorf("DSN should quote password, got: %s", dsn)
	}
	if !strings.Contains(dsn, "host=localhost") || !strings.Contains(dsn, "dbname=loombot") {
		t.Errorf("DSN missing expected fields: %s", dsn)
	}
}

func TestPostgresURL(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "p@ss/word"

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("URL should use postgres scheme, got: %s", u)
	}
	if strings.Contains(u, "p@ss/word") {
		t.Errorf("URL should encode special characters in password, got: %s", u)
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{ProviderOpenAI, "openai/gpt-4o", "openai/gpt-4o"}, // already qualified
	}
	for _, tt := range tests {
		cfg := validConfig()
		cfg.Provider = tt.provider
		cfg.ModelName = tt.model
		if got := cfg.FullModelName(); got != tt.want {
			t.Errorf("FullModelName(%s, %s) = %q, want %q", tt.provider, tt.model, got, tt.want)
		}
	}
}

func TestMarshalJSON_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"
	cfg.Ticket.APIKey = "dude_api_key_12345"

	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}

	s := string(data)
	if strings.Contains(s, "super_secret_password") {
		t.Error("marshaled config leaks postgres password")
	}
	if strings.Contains(s, "dude_api_key_12345") {
		t.Error("marshaled config leaks ticket API key")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Errorf("maskSecret(\"\") = %q, want empty", got)
	}
	if got := maskSecret("short"); got != maskedValue {
		t.Errorf("short secrets must be fully masked, got %q", got)
	}
	long := maskSecret("abcdefghijklmnop")
	if strings.Contains(long, "cdefghijklmn") {
		t.Errorf("long secret insufficiently masked: %q", long)
	}
}
