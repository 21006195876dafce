package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftworks/loombot/internal/app"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <pergunta>",
		Short: "Faz uma pergunta avulsa, sem histórico de conversa",
		Long: `Executa um único turno do assistente com a pergunta dada e imprime a
resposta. Útil para testar a configuração e as ferramentas sem subir o
serviço completo.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(strings.Join(args, " "))
		},
	}
}

func runAsk(question string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	answer := a.Assistant.Run(ctx, question, nil)
	fmt.Println(answer)
	return nil
}
