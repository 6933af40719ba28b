//go:build debugheaplog

package internal

import (
	"log/slog"
	"runtime"
	"time"
	"unsafe"
)

const (
	HeapAllocDebugging = true
	timefmt            = "[15:04:05.000]"
)

var (
	memstats   runtime.MemStats
	lastAllocs uint64

	timebuf [len(timefmt) * 2]byte
)

// LogAttrs prints directly to stderr without allocating and reports heap growth
// between calls. The logger argument is only checked for nil.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l == nil {
		return
	}
	n := len(time.Now().AppendFormat(timebuf[:0], timefmt))
	runtime.ReadMemStats(&memstats)
	if memstats.TotalAlloc != lastAllocs {
		print("[ALLOC] inc=", int64(memstats.TotalAlloc)-int64(lastAllocs))
		print(" tot=", memstats.TotalAlloc, " rstream\n")
	}
	print(unsafe.String(&timebuf[0], n), " ")
	switch {
	case level == LevelTrace:
		print("TRACE ")
	case level < slog.LevelDebug:
		print("RSTREAM ")
	default:
		print(level.String(), " ")
	}
	print(msg)
	for _, a := range attrs {
		switch a.Value.Kind() {
		case slog.KindString:
			print(" ", a.Key, "=", a.Value.String())
		case slog.KindInt64:
			print(" ", a.Key, "=", a.Value.Int64())
		case slog.KindUint64:
			print(" ", a.Key, "=", a.Value.Uint64())
		case slog.KindBool:
			print(" ", a.Key, "=", a.Value.Bool())
		}
	}
	println()
	runtime.ReadMemStats(&memstats)
	lastAllocs = memstats.TotalAlloc
}
