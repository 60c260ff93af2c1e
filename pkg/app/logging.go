package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/security"
)

// NewLogger builds the process logger. Format "auto" picks text on a
// terminal and JSON otherwise. Every record passes through the redactor.
func NewLogger(w io.Writer, cfg config.LogConfig, level *slog.LevelVar, redactor *security.Redactor) *slog.Logger {
	if level == nil {
		level = new(slog.LevelVar)
	}
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if useJSON(w, cfg.Format) {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

func useJSON(w io.Writer, format string) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}
	return !isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
