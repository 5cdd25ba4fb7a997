package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerEntry is one answered question inside a submission.
type AnswerEntry struct {
	QuestionID     uuid.UUID `json:"questionId" binding:"required"`
	SelectedOption int       `json:"selectedOption" binding:"min=0"`
}

// SubmitRequest is the payload of POST /exams/submit.
// Unanswered questions are absent from Answers.
type SubmitRequest struct {
	ExamID  uuid.UUID     `json:"examId" binding:"required"`
	Answers []AnswerEntry `json:"answers" binding:"dive"`
}

// SubmitAck acknowledges an accepted submission.
type SubmitAck struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	ExamID       uuid.UUID `json:"examId"`
	Answered     int       `json:"answered"`
	Score        float64   `json:"score"`
	MaxScore     float64   `json:"maxScore"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Duplicate    bool      `json:"duplicate,omitempty"`
}

// Submission is the persisted form of a graded submission.
type Submission struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    string        `json:"tenant_id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	StudentID   int           `json:"student_id"`
	Answers     []AnswerEntry `json:"answers"`
	Score       float64       `json:"score"`
	MaxScore    float64       `json:"max_score"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// SubmissionResult is a row of the teacher-facing results listing.
type SubmissionResult struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	StudentID    int       `json:"studentId"`
	Answered     int       `json:"answered"`
	Score        float64   `json:"score"`
	MaxScore     float64   `json:"maxScore"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Percentage returns the score as a percentage of the maximum.
func (r *SubmissionResult) Percentage() float64 {
	if r.MaxScore <= 0 {
		return 0
	}
	return r.Score / r.MaxScore * 100
}
