package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// zerologFactory routes pion's internal logs into ours. Pion is chatty at
// info during ICE, so its info lands at debug.
type zerologFactory struct {
	log zerolog.Logger
}

func (f zerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLeveled{log: f.log.With().Str("scope", scope).Logger()}
}

type zerologLeveled struct {
	log zerolog.Logger
}

func (l *zerologLeveled) Trace(msg string)                  { l.log.Trace().Msg(msg) }
func (l *zerologLeveled) Tracef(format string, args ...any) { l.log.Trace().Msgf(format, args...) }
func (l *zerologLeveled) Debug(msg string)                  { l.log.Debug().Msg(msg) }
func (l *zerologLeveled) Debugf(format string, args ...any) { l.log.Debug().Msgf(format, args...) }
func (l *zerologLeveled) Info(msg string)                   { l.log.Debug().Msg(msg) }
func (l *zerologLeveled) Infof(format string, args ...any)  { l.log.Debug().Msgf(format, args...) }
func (l *zerologLeveled) Warn(msg string)                   { l.log.Warn().Msg(msg) }
func (l *zerologLeveled) Warnf(format string, args ...any)  { l.log.Warn().Msgf(format, args...) }
func (l *zerologLeveled) Error(msg string)                  { l.log.Error().Msg(msg) }
func (l *zerologLeveled) Errorf(format string, args ...any) { l.log.Error().Msgf(format, args...) }
