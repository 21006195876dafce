package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftworks/loombot/internal/app"
	"github.com/weftworks/loombot/internal/ingest"
)

func newIndexCmd() *cobra.Command {
	var tables []string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Reindexa a documentação técnica para busca semântica",
		Long: `Lê as tabelas de documentação, fragmenta o conteúdo e grava os
fragmentos com seus embeddings na base de conhecimento. Sem --table,
indexa todas as fontes padrão.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(tables)
		},
	}
	cmd.Flags().StringSliceVar(&tables, "table", nil,
		"tabela de documentação a indexar (repetível; padrão: todas)")
	return cmd
}

func runIndex(tables []string) error {
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

	ingester, err := a.NewIngester()
	if err != nil {
		return err
	}

	var sources []ingest.Source
	if len(tables) > 0 {
		all := ingest.DefaultSources()
		byName := make(map[string]ingest.Source, len(all))
		for _, src := range all {
			byName[src.Table] = src
		}
		for _, table := range tables {
			src, ok := byName[table]
			if !ok {
				return fmt.Errorf("unknown documentation table %q", table)
			}
			sources = append(sources, src)
		}
	}

	total, err := ingester.Run(ctx, sources)
	if err != nil {
		return err
	}
	fmt.Printf("Indexação concluída: %d fragmentos gravados.\n", total)
	return nil
}
