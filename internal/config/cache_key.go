package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPayloadKey holds the student-facing exam definition (no answers).
func (r *CacheKeyStruct) ExamPayloadKey(tenant, examID string) string {
	return fmt.Sprintf("exam:%s:%s:payload", tenant, examID)
}

// ExamAnswerKey is a hash of question ID to correct option index.
func (r *CacheKeyStruct) ExamAnswerKey(tenant, examID string) string {
	return fmt.Sprintf("exam:%s:%s:key", tenant, examID)
}

// AttemptStartKey records when a student first opened an exam.
func (r *CacheKeyStruct) AttemptStartKey(tenant, examID string, studentID int) string {
	return fmt.Sprintf("tenant:%s:student:%d:exam:%s:attempt_start", tenant, studentID, examID)
}

// SubmissionLockKey guards the single submission of an attempt.
func (r *CacheKeyStruct) SubmissionLockKey(tenant, examID string, studentID int) string {
	return fmt.Sprintf("tenant:%s:student:%d:exam:%s:submit_lock", tenant, studentID, examID)
}

// SubmissionAckKey stores the acknowledgment returned to the student.
func (r *CacheKeyStruct) SubmissionAckKey(tenant, examID string, studentID int) string {
	return fmt.Sprintf("tenant:%s:student:%d:exam:%s:submission", tenant, studentID, examID)
}

// RateLimitKey counts requests of one user for a fixed window.
func (r *CacheKeyStruct) RateLimitKey(tenant string, userID int, scope string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d:%s:%d", tenant, userID, scope, window)
}

var CacheKey = NewCacheKeyStruct()
