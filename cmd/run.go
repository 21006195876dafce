package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/weftworks/loombot/internal/app"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Inicia o serviço: uma sessão isolada por usuário ativo",
		Long: `Inicia o supervisor de sessões. A cada ciclo ele consulta a lista de
usuários ativos, abre uma sessão para cada usuário novo e recolhe as que
terminaram. O serviço roda até receber SIGINT ou SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService()
		},
	}
}

func runService() error {
	logger := newLogger()

	// One service instance per host: two supervisors polling the same user
	// table would double-process messages.
	lock, unlock, err := acquireInstanceLock()
	if err != nil {
		return err
	}
	defer unlock()
	logger.Debug("instance lock acquired", "path", lock)

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

	logger.Info("loombot service starting",
		"model", cfg.FullModelName(),
		"user_poll", cfg.UserPollInterval(),
		"message_poll", cfg.MessagePollInterval())

	return a.Supervisor.Run(ctx)
}

// acquireInstanceLock takes a non-blocking file lock under the config
// directory. Returns the lock path and a release func.
func acquireInstanceLock() (string, func(), error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil, fmt.Errorf("getting user home directory: %w", err)
	}
	dir := filepath.Join(home, ".loombot")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", nil, fmt.Errorf("creating lock directory: %w", err)
	}

	path := filepath.Join(dir, "loombot.lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return "", nil, fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return "", nil, fmt.Errorf("another loombot instance is already running (lock: %s)", path)
	}
	return path, func() { _ = fl.Unlock() }, nil
}
