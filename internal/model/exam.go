package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the stored exam entity, scoped to a tenant (school).
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        string     `json:"tenantId"`
	Title           string     `json:"title"`
	SubjectName     string     `json:"subjectName"`
	DurationMinutes int        `json:"durationMinutes"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         time.Time  `json:"endTime"`
	Status          ExamStatus `json:"status"`
	Questions       []Question `json:"questions,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Definition strips an exam down to the student-facing paper.
func (e *Exam) Definition() *ExamDefinition {
	questions := make([]Question, len(e.Questions))
	copy(questions, e.Questions)
	return &ExamDefinition{
		ID:              e.ID,
		Title:           e.Title,
		SubjectName:     e.SubjectName,
		DurationMinutes: e.DurationMinutes,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		Questions:       questions,
	}
}

// ExamDefinition is the exam paper returned by GET /exams/:id.
// Question order is display order. RemainingSeconds and ServerTime are filled
// per caller by the exam service.
type ExamDefinition struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	SubjectName      string     `json:"subjectName"`
	DurationMinutes  int        `json:"durationMinutes"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          time.Time  `json:"endTime"`
	Questions        []Question `json:"questions"`
	RemainingSeconds *int       `json:"remainingSeconds,omitempty"`
	ServerTime       *time.Time `json:"serverTime,omitempty"`
}

// MaxScore is the sum of all question marks.
func (d *ExamDefinition) MaxScore() float64 {
	var total float64
	for _, q := range d.Questions {
		total += q.Marks
	}
	return total
}
