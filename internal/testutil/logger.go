package testutil

import (
	"log/slog"
	"os"

	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/logger"
)

// NewLogger returns the engine logger tuned for tests: quiet by default,
// DEBUG=1 enables info output and DEBUG=2 full debug output.
func NewLogger() *slog.Logger {
	level := slog.LevelError
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	}
	return logger.NewWithLevel(os.Stderr, level)
}
