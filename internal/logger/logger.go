package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logger = zerolog.Nop()

// Init configures the global console logger at the given level. Unknown
// levels fall back to info.
func Init(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	logger = log.With().Caller().Logger()
}

func GetLogger() *zerolog.Logger {
	return &logger
}

// Component returns a child logger tagged with the component name
func Component(name string) *zerolog.Logger {
	l := logger.With().Str("component", name).Logger()
	return &l
}
