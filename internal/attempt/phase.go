package attempt

import "errors"

// Phase is the discrete state of an attempt.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseInProgress
	PhaseSubmitting
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "LOADING"
	case PhaseInProgress:
		return "IN_PROGRESS"
	case PhaseSubmitting:
		return "SUBMITTING"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Cause records what triggered a submission.
type Cause int

const (
	UserInitiated Cause = iota + 1
	TimeExpired
)

func (c Cause) String() string {
	switch c {
	case UserInitiated:
		return "user"
	case TimeExpired:
		return "timer"
	default:
		return "unknown"
	}
}

// Load-time errors.
var (
	ErrExamClosed     = errors.New("exam window has closed")
	ErrExamNotStarted = errors.New("exam has not started yet")
	ErrFetchFailed    = errors.New("fetch exam failed")
	ErrMalformedExam  = errors.New("exam has a question without options")
)

// Ledger and gate errors.
var (
	ErrInvalidOption            = errors.New("invalid option for question")
	ErrNotInProgress            = errors.New("attempt is not in progress")
	ErrSubmissionInFlight       = errors.New("submission already in flight")
	ErrAlreadySubmitted         = errors.New("attempt already submitted")
	ErrSubmissionFailed         = errors.New("submission failed")
	ErrSubmissionFailedOnExpiry = errors.New("submission on time expiry failed")
)
