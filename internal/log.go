package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is below debug and is used for per-segment logging.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogEnabled reports whether l would emit a record at level. Callers use it to
// skip building attributes on hot paths.
func LogEnabled(l *slog.Logger, level slog.Level) bool {
	return l != nil && (HeapAllocDebugging || l.Enabled(context.Background(), level))
}
