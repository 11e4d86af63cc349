package main

import (
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type loggingSettings struct {
	Level      string
	Format     string
	WithCaller bool
}

// initLogger configures the global zerolog logger. "auto" picks the console
// writer when stderr is a terminal.
func initLogger(s loggingSettings) error {
	level, err := zerolog.ParseLevel(strings.ToLower(s.Level))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", s.Level)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	console := false
	switch s.Format {
	case "console":
		console = true
	case "json":
	case "auto", "":
		console = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	default:
		return errors.Errorf("invalid log format %q", s.Format)
	}

	logger := zerolog.New(os.Stderr)
	if console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	ctx := logger.With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}
