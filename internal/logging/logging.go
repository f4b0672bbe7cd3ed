package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level maps LOG_LEVEL onto a zerolog level, falling back to def.
func Level(def zerolog.Level) zerolog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return def
	}
	switch l {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	}
	return def
}

// Init installs the global logger. A terminal gets human readable output;
// anything else gets JSON lines.
func Init(w io.Writer, def zerolog.Level) zerolog.Logger {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).Level(Level(def)).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
