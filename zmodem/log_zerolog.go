package zmodem

import "github.com/rs/zerolog"

// ZerologLogger adapts a zerolog.Logger to the package Logger
// interface, so protocol traces land in the same structured stream as
// the rest of an application's logs.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps a zerolog.Logger.
func NewZerologLogger(log zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: log}
}

func (z *ZerologLogger) Debug(format string, args ...interface{}) {
	z.log.Debug().Msgf(format, args...)
}

func (z *ZerologLogger) Info(format string, args ...interface{}) {
	z.log.Info().Msgf(format, args...)
}

func (z *ZerologLogger) Error(format string, args ...interface{}) {
	z.log.Error().Msgf(format, args...)
}
