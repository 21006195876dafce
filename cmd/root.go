// Package cmd implements the loombot command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftworks/loombot/internal/config"
	"github.com/weftworks/loombot/internal/log"
)

// Execute runs the root command. Called from main.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "loombot",
		Short: "Assistente conversacional da fábrica de feltros",
		Long: `loombot atende os usuários da fábrica: responde perguntas sobre a
documentação técnica, consulta o estado das máquinas e da produção e busca
ordens de serviço no sistema de manutenção.

Sem argumentos, mostra esta ajuda. Use "loombot run" para iniciar o serviço.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newAskCmd(),
		newIndexCmd(),
		newVersionCmd(),
	)
	return root
}

// newLogger builds the process logger. DEBUG in the environment switches to
// debug level; LOG_JSON switches to JSON output for log shippers.
func newLogger() *slog.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}

// loadConfig loads and validates the configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
