package attempt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ExamService is the exam-service boundary used by a session.
type ExamService interface {
	FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
	SubmitExam(ctx context.Context, req *model.SubmitRequest) (*model.SubmitAck, error)
}

// InitialRemaining computes the seconds this attempt may run: the duration
// allowance clamped by the exam's closing time. A server-supplied remaining
// budget is authoritative and clamps further.
func InitialRemaining(exam *model.ExamDefinition, now time.Time) int {
	remaining := exam.DurationMinutes * 60

	untilEnd := int(math.Floor(exam.EndTime.Sub(now).Seconds()))
	if untilEnd < remaining {
		remaining = untilEnd
	}

	if exam.RemainingSeconds != nil && *exam.RemainingSeconds < remaining {
		remaining = *exam.RemainingSeconds
	}
	return remaining
}

// Load fetches the exam, resolves the remaining time and starts the countdown.
// On error no session is returned and nothing keeps running.
func Load(ctx context.Context, svc ExamService, examID uuid.UUID, opts ...Option) (*Session, error) {
	s := newSession(svc, opts...)
	if err := s.load(ctx, examID); err != nil {
		return nil, err
	}
	return s, nil
}

func newSession(svc ExamService, opts ...Option) *Session {
	s := &Session{
		svc:      svc,
		clock:    realClock{},
		interval: time.Second,
		log:      zerolog.Nop(),
		phase:    PhaseLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) load(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.svc.FetchExam(ctx, examID)
	if err != nil {
		s.failLoad()
		if errors.Is(err, ErrExamClosed) || errors.Is(err, ErrExamNotStarted) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	for i := range exam.Questions {
		if len(exam.Questions[i].Options) == 0 {
			s.failLoad()
			return fmt.Errorf("%w: %s", ErrMalformedExam, exam.Questions[i].ID)
		}
	}

	// A paper served with a server budget has already been admitted by the
	// server; the local clock may lag behind it.
	now := s.clock.Now()
	if exam.RemainingSeconds == nil && !exam.StartTime.IsZero() && now.Before(exam.StartTime) {
		s.failLoad()
		return ErrExamNotStarted
	}

	remaining := InitialRemaining(exam, now)
	if remaining <= 0 {
		s.failLoad()
		return ErrExamClosed
	}

	s.mu.Lock()
	s.exam = exam
	s.ledger = NewLedger(exam.Questions)
	s.remaining = remaining
	s.phase = PhaseInProgress
	s.startCountdownLocked()
	s.mu.Unlock()

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("remaining_seconds", remaining).
		Int("questions", len(exam.Questions)).
		Msg("Attempt started")
	return nil
}

func (s *Session) failLoad() {
	s.mu.Lock()
	s.phase = PhaseFailed
	s.mu.Unlock()
}
