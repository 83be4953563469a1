package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// NewLogger builds a leveled logger writing JSON to stdout, or human-readable lines when format is
// "console". Format "auto" picks console output when stdout is a terminal.
func NewLogger(level, format string) zerolog.Logger {
	return newLogger(os.Stdout, level, format, term.IsTerminal(int(os.Stdout.Fd())))
}

func newLogger(out io.Writer, level, format string, tty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	console := strings.EqualFold(format, "console") || (strings.EqualFold(format, "auto") && tty)
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
