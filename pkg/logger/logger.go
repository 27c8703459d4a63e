package logger

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/LeeDigitalWorks/zapgate/pkg/env"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type loggerKey struct{}

var globalLogger zerolog.Logger

func init() {
	hostname, err := os.Hostname()
	if err != nil {
		panic(err)
	}

	pname, err := os.Executable()
	if err != nil {
		panic(err)
	}

	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		parsed, err := zerolog.ParseLevel(raw)
		if err != nil || parsed == zerolog.NoLevel {
			log.Warn().Err(err).Str("log_level", raw).Msg("invalid LOG_LEVEL, defaulting to INFO")
		} else {
			level = parsed
		}
	}

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	base := log.Logger
	if env.IsLocal() {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	globalLogger = base.With().
		Str("hostname", hostname).
		Str("executable", filepath.Base(pname)).
		Stack().
		Caller().
		Logger().
		Level(level)

	log.Logger = globalLogger
}

// Ctx returns the request logger stored in ctx, or the global logger when
// none was attached.
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &globalLogger
	}
	if l, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok && l != nil {
		return l
	}
	return &globalLogger
}

func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// With returns a child of the global logger for adding request fields.
func With() zerolog.Context {
	return globalLogger.With()
}

// SetLevel updates the global log level
func SetLevel(level zerolog.Level) {
	globalLogger = globalLogger.Level(level)
	log.Logger = globalLogger
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return globalLogger.Fatal()
}

// Error logs an error message
func Error() *zerolog.Event {
	return globalLogger.Error()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return globalLogger.Warn()
}

// Info logs an info message
func Info() *zerolog.Event {
	return globalLogger.Info()
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return globalLogger.Debug()
}

// Trace logs a trace message
func Trace() *zerolog.Event {
	return globalLogger.Trace()
}
