package logger

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// L is the global logger instance. It's initialized to discard all output by default.
// Call Init() to enable logging.
var L *slog.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Out receives the deferred messages that callers queue through the log
// service. It is separate from L so operators see caller text verbatim.
var Out io.Writer = os.Stdout

const (
	logPrefix     = "xmemkit-"
	logSuffix     = ".log"
	retentionDays = 30
)

// Options configures the logger initialization.
type Options struct {
	Enabled bool      // If false, all logging is discarded
	LogDir  string    // Directory for log files. Empty logs to Writer.
	Writer  io.Writer // Destination when LogDir is empty. Default: os.Stderr
	JSON    bool      // JSON instead of text records
	Level   Level     // Minimum level for every component. Default: INFO
}

// Init configures logging. Call from main() before any log calls.
// If opts.Enabled is false, all log output is discarded.
func Init(opts Options) error {
	if !opts.Enabled {
		L = slog.New(slog.NewTextHandler(io.Discard, nil))
		return nil
	}

	w := opts.Writer
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
			return err
		}

		// Clean up old logs (best-effort, ignore errors)
		cleanOldLogs(opts.LogDir)

		filename := filepath.Join(opts.LogDir, logPrefix+time.Now().Format("2006-01-02")+logSuffix)
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w = f
	}
	if w == nil {
		w = os.Stderr
	}

	level := opts.Level
	if level == LevelNA {
		level = LevelInfo
	}
	for _, c := range components {
		c.SetLevel(level)
	}

	// Components filter; the handler itself lets everything through.
	hopts := &slog.HandlerOptions{Level: slog.Level(-100), ReplaceAttr: replaceLevel}
	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(w, hopts))
	} else {
		L = slog.New(slog.NewTextHandler(w, hopts))
	}
	return nil
}

// cleanOldLogs removes log files older than retentionDays.
func cleanOldLogs(logDir string) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logSuffix) {
			continue
		}

		// Parse date from filename: xmemkit-2024-01-05.log
		dateStr := strings.TrimPrefix(strings.TrimSuffix(name, logSuffix), logPrefix)
		logDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		if logDate.Before(cutoff) {
			os.Remove(filepath.Join(logDir, name))
		}
	}
}

// replaceLevel prints the operator level names instead of slog's.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lv, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(FromSlog(lv).String())
		}
	}
	return a
}

// Debug logs a debug message for the CMS component with optional key-value pairs.
func Debug(msg string, args ...any) { CMS.Log(LevelDebug, msg, args...) }

// Info logs an info message for the CMS component with optional key-value pairs.
func Info(msg string, args ...any) { CMS.Log(LevelInfo, msg, args...) }

// Warn logs a warning message for the CMS component with optional key-value pairs.
func Warn(msg string, args ...any) { CMS.Log(LevelWarning, msg, args...) }

// Error logs a severe message for the CMS component with optional key-value pairs.
func Error(msg string, args ...any) { CMS.Log(LevelSevere, msg, args...) }

// Dump logs data as a hex dump at level for component c.
func Dump(c *Component, level Level, msg string, data []byte) {
	if !c.ShouldTrace(level) {
		return
	}
	c.Log(level, msg, "size", len(data), "dump", "\n"+hex.Dump(data))
}

// HexLines formats data the way Dump does, one string per 16-byte row.
func HexLines(data []byte) []string {
	return strings.Split(strings.TrimSuffix(hex.Dump(data), "\n"), "\n")
}

var outMu sync.Mutex

// Printf writes verbatim text to Out.
func Printf(format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(Out, format, args...)
}

func logAt(c *Component, level Level, msg string, args ...any) {
	L.Log(context.Background(), level.Slog(), msg, append([]any{"component", c.name}, args...)...)
}
