package testutil

import "log/slog"

// DiscardLogger returns a logger that drops all output. Equivalent to
// log.NewNop() but importable from packages that do not use internal/log.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
