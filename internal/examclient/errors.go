package examclient

import (
	"fmt"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// APIError is a non-2xx answer from the exam service.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("exam service: HTTP %d", e.Status)
	}
	return fmt.Sprintf("exam service: %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps service error codes onto the attempt package sentinels so
// callers can match them with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case response.ErrExamClosed:
		return attempt.ErrExamClosed
	case response.ErrExamNotStarted:
		return attempt.ErrExamNotStarted
	case response.ErrAlreadySubmitted:
		return attempt.ErrAlreadySubmitted
	case response.ErrSubmissionInProgress:
		return attempt.ErrSubmissionInFlight
	case response.ErrInvalidOption:
		return attempt.ErrInvalidOption
	default:
		return nil
	}
}

var _ attempt.ExamService = (*Client)(nil)
