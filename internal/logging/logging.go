package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Setup configures the global zerolog logger. Unknown levels fall back to
// warn so user-facing output stays clean.
func Setup(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if !strings.EqualFold(strings.TrimSpace(opts.Format), FormatJSON) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: !isTerminal(out)}
	}

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

// SetupFromEnv reads AUDITCTL_LOG_LEVEL and AUDITCTL_LOG_FORMAT.
func SetupFromEnv(levelEnv, formatEnv string) zerolog.Logger {
	return Setup(Options{
		Level:  os.Getenv(levelEnv),
		Format: os.Getenv(formatEnv),
	})
}

func ParseLevel(raw string) zerolog.Level {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(v)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.WarnLevel
	}
	return lvl
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
