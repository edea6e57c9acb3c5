package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Setup installs the process-wide slog logger: a text handler on stderr
// (skipped when running as a systemd service, where stderr already lands in
// the journal), a JSON handler appending to logFile when non-empty, and a
// journald handler when the journal socket is reachable. Returns a close
// func for the log file.
func Setup(level, logFile string) func() {
	lv := ParseLevel(level)
	closer := func() {}

	var fileW io.Writer
	if strings.TrimSpace(logFile) != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err == nil {
				fileW = f
				closer = func() { _ = f.Close() }
			} else {
				slog.Warn("Log file unavailable", "path", logFile, "error", err)
			}
		}
	}

	var console io.Writer
	if !underSystemd() {
		console = os.Stderr
	}

	handlers, terminal := buildHandlers(lv, console, fileW)

	if jh, err := slogjournal.NewHandler(&slogjournal.Options{
		Level: lv,
		ReplaceGroup: func(key string) string {
			return journalKey(key)
		},
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = journalKey(a.Key)
			return a
		},
	}); err == nil {
		handlers = append(handlers, jh)
	} else if terminal != nil {
		rec := slog.NewRecord(time.Now(), slog.LevelDebug, "journald handler unavailable", 0)
		rec.Add("error", err)
		_ = terminal.Handle(context.Background(), rec)
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	return closer
}

func buildHandlers(lv slog.Level, console, file io.Writer) ([]slog.Handler, slog.Handler) {
	var handlers []slog.Handler
	var terminal slog.Handler
	if console != nil {
		terminal = slog.NewTextHandler(console, &slog.HandlerOptions{Level: lv})
		handlers = append(handlers, terminal)
	}
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lv}))
	}
	return handlers, terminal
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// journald field names must be uppercase alphanumerics and underscores.
func journalKey(s string) string {
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, s)
}

func underSystemd() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.SplitN(string(content), ":", 3)
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(strings.TrimSpace(parts[2])), ".service")
}
