package attempt

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// Submit sends the answers to the exam service. Whatever the number of
// callers, at most one submission is on the wire and at most one succeeds.
// Calls that lose the race return ErrSubmissionInFlight or ErrAlreadySubmitted
// without touching the network.
//
// A failed submission moves the attempt to PhaseFailed; a later
// UserInitiated call retries it, including after the timer has expired.
func (s *Session) Submit(ctx context.Context, cause Cause) (*model.SubmitAck, error) {
	req, err := s.beginSubmit(cause)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("cause", cause.String()).
		Int("answered", len(req.Answers)).
		Msg("Submitting attempt")

	ack, err := s.svc.SubmitExam(ctx, req)
	return s.finishSubmit(cause, ack, err)
}

// beginSubmit is the check-and-set that makes submission at-most-once. It
// runs before any network I/O.
func (s *Session) beginSubmit(cause Cause) (*model.SubmitRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseInProgress:
	case PhaseFailed:
		if !s.retryable || cause != UserInitiated {
			return nil, ErrNotInProgress
		}
	case PhaseSubmitting:
		return nil, ErrSubmissionInFlight
	case PhaseCompleted:
		return nil, ErrAlreadySubmitted
	default:
		return nil, ErrNotInProgress
	}

	s.phase = PhaseSubmitting
	s.stopCountdownLocked()
	return s.payloadLocked(), nil
}

func (s *Session) finishSubmit(cause Cause, ack *model.SubmitAck, err error) (*model.SubmitAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if cause == TimeExpired {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailedOnExpiry, err)
		} else {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
		s.phase = PhaseFailed
		s.retryable = true
		s.lastErr = err
		return nil, err
	}

	s.phase = PhaseCompleted
	s.retryable = false
	s.lastErr = nil
	s.ack = ack
	return ack, nil
}
