package config

import (
	"fmt"
	"strings"
)

// validProviders is the closed set of supported AI providers.
var validProviders = map[string]bool{
	ProviderGemini:   true,
	ProviderGoogleAI: true,
	ProviderOllama:   true,
	ProviderOpenAI:   true,
}

// Validate performs fail-fast validation of the whole configuration.
// Returns a wrapped sentinel error for the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if !validProviders[c.Provider] {
		return fmt.Errorf("%w: %q (supported: gemini, googleai, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}

	if c.HistoryLimit < 2 || c.HistoryLimit > 1000 {
		return fmt.Errorf("%w: %d (must be 2-1000)", ErrInvalidHistoryLimit, c.HistoryLimit)
	}

	if c.MatchThreshold < 1 || c.MatchThreshold > 100 {
		return fmt.Errorf("%w: %d (must be 1-100)", ErrInvalidMatchThreshold, c.MatchThreshold)
	}

	if len(c.Entities.Machines) == 0 {
		return ErrNoEquipment
	}

	// The ticketing URL is optional (the tool degrades to an error text when
	// unset) but must parse when present.
	if u := strings.TrimSpace(c.Ticket.BaseURL); u != "" {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%w: %q", ErrInvalidTicketURL, c.Ticket.BaseURL)
		}
	}

	return nil
}
