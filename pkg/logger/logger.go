package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the key/value logging facade shared by every layer.
// Pairs are passed as alternating keys and values: log.Info("msg", "user_id", id).
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type zerologLogger struct {
	z zerolog.Logger
}

// New builds a JSON logger on stdout at the given level.
func New(level string) Logger {
	return newLogger(os.Stdout, level)
}

// NewConsole builds a human readable logger, used in development.
func NewConsole(level string) Logger {
	return newLogger(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, level)
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zerologLogger{z: zerolog.Nop()}
}

func newLogger(w io.Writer, level string) Logger {
	z := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
	return &zerologLogger{z: z}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *zerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.z.Debug().Fields(normalize(keysAndValues)).Msg(msg)
}

func (l *zerologLogger) Info(msg string, keysAndValues ...interface{}) {
	l.z.Info().Fields(normalize(keysAndValues)).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.z.Warn().Fields(normalize(keysAndValues)).Msg(msg)
}

func (l *zerologLogger) Error(msg string, keysAndValues ...interface{}) {
	l.z.Error().Fields(normalize(keysAndValues)).Msg(msg)
}

// Fatal logs and exits the process.
func (l *zerologLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.z.Fatal().Fields(normalize(keysAndValues)).Msg(msg)
}

func (l *zerologLogger) With(keysAndValues ...interface{}) Logger {
	return &zerologLogger{z: l.z.With().Fields(normalize(keysAndValues)).Logger()}
}

// normalize pads an odd-length list so the dangling key still shows up.
func normalize(keysAndValues []interface{}) []interface{} {
	if len(keysAndValues)%2 == 0 {
		return keysAndValues
	}
	return append(keysAndValues, "(MISSING)")
}
