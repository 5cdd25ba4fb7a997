// Package attempt runs one student's timed attempt at an exam: it loads the
// paper, counts down the remaining time, records answers and submits them
// exactly once, either on request or when the time runs out.
package attempt

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Session is the state of a single attempt. All methods are safe for
// concurrent use.
type Session struct {
	svc      ExamService
	clock    Clock
	interval time.Duration
	log      zerolog.Logger
	onTick   func(remaining int)
	onExpire func(ack *model.SubmitAck, err error)

	mu        sync.Mutex
	exam      *model.ExamDefinition
	ledger    *Ledger
	phase     Phase
	remaining int
	retryable bool
	ack       *model.SubmitAck
	lastErr   error
	stop      chan struct{}
	closed    bool
}

// Exam returns the loaded exam definition. It must not be modified.
func (s *Session) Exam() *model.ExamDefinition {
	return s.exam
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Remaining returns the seconds left on the countdown.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// SelectOption records the student's choice for a question. Only allowed
// while the attempt is in progress.
func (s *Session) SelectOption(questionID uuid.UUID, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	return s.ledger.Select(questionID, optionIndex)
}

// Answers returns a copy of the recorded answers.
func (s *Session) Answers() map[uuid.UUID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger == nil {
		return map[uuid.UUID]int{}
	}
	return s.ledger.Snapshot()
}

// Payload returns the submission payload built from the current answers.
func (s *Session) Payload() *model.SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloadLocked()
}

func (s *Session) payloadLocked() *model.SubmitRequest {
	return &model.SubmitRequest{
		ExamID:  s.exam.ID,
		Answers: s.ledger.Entries(),
	}
}

// Result returns the acknowledgment of a completed submission.
func (s *Session) Result() (*model.SubmitAck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ack, s.ack != nil
}

// Err returns the error of the most recent failed submission.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close releases the countdown. An in-flight submission is not cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopCountdownLocked()
}
