package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	cfg := defaultConfig(ProfileRuntime)
	cfg.Output = nil
	Apply(cfg)
}

func setLogger(l *zerolog.Logger) {
	current.Store(l)
}

// Logger returns the process logger for structured call sites.
func Logger() zerolog.Logger {
	return *current.Load()
}

func Tracef(format string, args ...any) {
	current.Load().Trace().Msgf(format, args...)
}

func Debugf(format string, args ...any) {
	current.Load().Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	current.Load().Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	current.Load().Warn().Msgf(format, args...)
}

func Errf(format string, args ...any) {
	current.Load().Error().Msgf(format, args...)
}

// Logf writes at no level so the line survives any level filter except disabled.
func Logf(format string, args ...any) {
	current.Load().Log().Msgf(format, args...)
}
