package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger is the rs/zerolog backend.
type ZerologLogger struct {
	logger zerolog.Logger
}

var _ Logger = (*ZerologLogger)(nil)

// NewZerolog creates a zerolog logger writing to w.
//
// With console set, records are rendered by zerolog.ConsoleWriter for a
// terminal; otherwise they are written as JSON lines.
func NewZerolog(w io.Writer, level LogLevel, console bool) Logger {
	if w == nil {
		w = os.Stderr
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return &ZerologLogger{
		logger: zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger(),
	}
}

func (l *ZerologLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

// Fatal logs the message, then zerolog calls os.Exit(1).
func (l *ZerologLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.Fatal().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) With(keyValues ...any) Logger {
	return &ZerologLogger{logger: l.logger.With().Fields(keyValues).Logger()}
}

func (l *ZerologLogger) Level() LogLevel {
	lv := l.logger.GetLevel()
	if lv > zerolog.FatalLevel {
		return FatalLevel
	}

	return LogLevel(lv) - 1
}

// SetLevel changes the level of this logger only; children created earlier
// with With keep their level.
func (l *ZerologLogger) SetLevel(level LogLevel) {
	l.logger = l.logger.Level(toZerologLevel(level))
}

// zerolog levels are ours shifted by one: DebugLevel(-1) is zerolog.DebugLevel(0).
func toZerologLevel(level LogLevel) zerolog.Level {
	if level < DebugLevel {
		level = DebugLevel
	}
	if level > FatalLevel {
		level = FatalLevel
	}

	return zerolog.Level(level + 1)
}
