package attempt

import (
	"context"
	"errors"
)

func (s *Session) startCountdownLocked() {
	stop := make(chan struct{})
	s.stop = stop
	go s.runCountdown(s.clock.NewTicker(s.interval), stop)
}

// stopCountdownLocked cancels the periodic tick. Safe to call repeatedly.
func (s *Session) stopCountdownLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Session) runCountdown(t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			remaining, expired, ok := s.tick()
			if !ok {
				return
			}
			if s.onTick != nil {
				s.onTick(remaining)
			}
			if expired {
				s.expire()
				return
			}
		}
	}
}

// tick decrements the countdown. ok is false once the attempt has left
// InProgress, in which case nothing changes.
func (s *Session) tick() (remaining int, expired, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress || s.closed {
		return s.remaining, false, false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining, s.remaining <= 0, true
}

func (s *Session) expire() {
	s.log.Info().Msg("Time expired, submitting")
	ack, err := s.Submit(context.Background(), TimeExpired)
	if err != nil && !errors.Is(err, ErrSubmissionFailedOnExpiry) {
		// The gate refused before any network call: the student got there first.
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Auto-submit failed")
	}
	if s.onExpire != nil {
		s.onExpire(ack, err)
	}
}
