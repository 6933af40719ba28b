//go:build !debugheaplog

package internal

import (
	"context"
	"log/slog"
)

const HeapAllocDebugging = false

// LogAttrs is used by every logger in the module. Build with the `debugheaplog`
// tag to swap it for a printer that reports heap allocations between calls.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil && l.Enabled(context.Background(), level) {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

