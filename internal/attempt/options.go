package attempt

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock and ticker source.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithTickInterval overrides the one-second countdown period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger attaches a logger. Sessions are silent by default.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log.With().Str("component", "attempt").Logger() }
}

// WithTickObserver is called after every countdown tick with the remaining seconds.
// It runs on the countdown goroutine and must not block.
func WithTickObserver(fn func(remaining int)) Option {
	return func(s *Session) { s.onTick = fn }
}

// WithSubmitObserver is called with the outcome of a submission triggered by
// the countdown reaching zero.
func WithSubmitObserver(fn func(ack *model.SubmitAck, err error)) Option {
	return func(s *Session) { s.onExpire = fn }
}
