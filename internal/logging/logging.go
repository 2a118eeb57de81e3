// Package logging provides the structured logger used across the server,
// backed by zerolog so log output is structured and consumable by log
// aggregators rather than plain stdout text.
package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps a zerolog.Logger with the fixed call-site API the rest of
// the codebase depends on.
type Logger struct {
	z zerolog.Logger
}

var defaultLogger Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	defaultLogger = Logger{z: zerolog.New(console).With().Timestamp().Logger()}
	log.Logger = defaultLogger.z
}

// SetLevel sets the minimum log level by name: debug, info, warn, error.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	defaultLogger.z = defaultLogger.z.Level(lvl)
}

// Named returns a child logger tagging every line with a component name —
// used by the cmd entrypoint to scope the dispatcher's and the
// application's log lines to their subsystem.
func Named(component string) *Logger {
	child := defaultLogger.z.With().Str("component", component).Logger()
	return &Logger{z: child}
}

func (l *Logger) Debugf(format string, args ...any) { l.z.Debug().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.z.Info().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.z.Warn().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.z.Error().Msg(fmt.Sprintf(format, args...)) }

// Success logs at info level with a dedicated field, since zerolog has no
// distinct success level of its own.
func (l *Logger) Success(format string, args ...any) {
	l.z.Info().Bool("success", true).Msg(fmt.Sprintf(format, args...))
}

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(format string, args ...any) {
	l.z.Fatal().Msg(fmt.Sprintf(format, args...))
}

// Package-level convenience wrappers over the default logger, for callers
// that don't need a named component logger.
func Debugf(format string, args ...any) { defaultLogger.Debugf(format, args...) }
func Infof(format string, args ...any)  { defaultLogger.Infof(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warnf(format, args...) }
func Errorf(format string, args ...any) { defaultLogger.Errorf(format, args...) }
func Success(format string, args ...any) { defaultLogger.Success(format, args...) }
func Fatal(format string, args ...any)  { defaultLogger.Fatal(format, args...) }

// Section prints a visually distinct section header, for startup/shutdown
// phases.
func Section(title string) {
	fmt.Println()
	fmt.Printf("=== %s ===\n", title)
	fmt.Println()
}

// Banner prints the startup banner.
func Banner(title, version string) {
	fmt.Printf("%s (version %s)\n", title, version)
}
