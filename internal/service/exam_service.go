package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// Domain Errors
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotAvailable = errors.New("exam is not published")
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrExamNotStarted   = errors.New("exam has not started")
	ErrExamClosed       = errors.New("exam window has closed")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
)

// ExamStore reads exams.
type ExamStore interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*model.Exam, error)
	ListOpen(ctx context.Context, now time.Time) ([]model.Exam, error)
}

// QuestionStore reads the questions of an exam.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamService serves exam papers from a Redis cache backed by PostgreSQL and
// keeps the server-side attempt clock.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	rdb       *redis.Client
	now       func() time.Time
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, questions QuestionStore, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		now:       time.Now,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// cacheTTL keeps an exam cached a day past its close.
func cacheTTL(end, now time.Time) time.Duration {
	ttl := end.Sub(now) + 24*time.Hour
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}

// WarmExamCache loads an exam's questions from PostgreSQL and caches the
// student paper plus the answer key in Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) (*model.ExamDefinition, error) {
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	withQuestions := *exam
	withQuestions.Questions = questions
	paper := withQuestions.Definition()

	payloadJSON, err := json.Marshal(paper)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectOption
	}

	tenant, id := exam.TenantID, exam.ID.String()
	ttl := cacheTTL(exam.EndTime, s.now())

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(tenant, id), payloadJSON, ttl)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(tenant, id))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(tenant, id), answerKey)
	pipe.Expire(ctx, config.CacheKey.ExamAnswerKey(tenant, id), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("tenant_id", tenant).
		Str("exam_id", id).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return paper, nil
}

// PrewarmOpenExams caches every published exam whose window is still open.
func (s *ExamService) PrewarmOpenExams(ctx context.Context) error {
	exams, err := s.exams.ListOpen(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list open exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No open exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if _, err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetPaper returns the student paper of a published exam, from cache when
// possible.
func (s *ExamService) GetPaper(ctx context.Context, tenantID string, examID uuid.UUID) (*model.ExamDefinition, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(tenantID, examID.String())).Bytes()
	if err == nil {
		var paper model.ExamDefinition
		if err := json.Unmarshal(data, &paper); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &paper, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	exam, err := s.exams.GetByID(ctx, tenantID, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}
	return s.WarmExamCache(ctx, exam)
}

// GetAnswerKey returns question ID → correct option index.
func (s *ExamService) GetAnswerKey(ctx context.Context, tenantID string, examID uuid.UUID) (map[uuid.UUID]int, error) {
	key := config.CacheKey.ExamAnswerKey(tenantID, examID.String())
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(raw) == 0 {
		// Evicted or never warmed.
		exam, err := s.exams.GetByID(ctx, tenantID, examID)
		if err != nil {
			return nil, fmt.Errorf("get exam: %w", err)
		}
		if _, err := s.WarmExamCache(ctx, exam); err != nil {
			return nil, err
		}
		if raw, err = s.rdb.HGetAll(ctx, key).Result(); err != nil {
			return nil, fmt.Errorf("get answer key: %w", err)
		}
	}

	answers := make(map[uuid.UUID]int, len(raw))
	for qid, idx := range raw {
		id, err := uuid.Parse(qid)
		if err != nil {
			return nil, fmt.Errorf("answer key field %q: %w", qid, err)
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			return nil, fmt.Errorf("answer key value %q: %w", idx, err)
		}
		answers[id] = n
	}
	return answers, nil
}

// AttemptDeadline is the moment an attempt started at start runs out: the
// duration allowance clamped by the exam's end.
func AttemptDeadline(paper *model.ExamDefinition, start time.Time) time.Time {
	deadline := start.Add(time.Duration(paper.DurationMinutes) * time.Minute)
	if paper.EndTime.Before(deadline) {
		return paper.EndTime
	}
	return deadline
}

// RemainingSeconds is the whole seconds left before deadline, never negative.
func RemainingSeconds(deadline, now time.Time) int {
	left := math.Floor(deadline.Sub(now).Seconds())
	if left < 0 {
		return 0
	}
	return int(left)
}

// StartAttempt returns the paper for a student and records the start of
// their attempt on the first call. The paper carries the remaining seconds
// computed from that start.
func (s *ExamService) StartAttempt(ctx context.Context, tenantID string, examID uuid.UUID, studentID int) (*model.ExamDefinition, error) {
	paper, err := s.GetPaper(ctx, tenantID, examID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.Before(paper.StartTime) {
		return nil, ErrExamNotStarted
	}
	if !now.Before(paper.EndTime) {
		return nil, ErrExamClosed
	}

	id := examID.String()
	submitted, err := s.rdb.Exists(ctx, config.CacheKey.SubmissionAckKey(tenantID, id, studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if submitted > 0 {
		return nil, ErrAlreadySubmitted
	}

	startKey := config.CacheKey.AttemptStartKey(tenantID, id, studentID)
	created, err := s.rdb.SetNX(ctx, startKey, now.UnixMilli(), cacheTTL(paper.EndTime, now)).Result()
	if err != nil {
		return nil, fmt.Errorf("record attempt start: %w", err)
	}
	start := now
	if !created {
		if start, err = s.attemptStart(ctx, startKey); err != nil {
			return nil, err
		}
	} else {
		s.log.Info().
			Str("tenant_id", tenantID).
			Str("exam_id", id).
			Int("student_id", studentID).
			Msg("Attempt started")
	}

	remaining := RemainingSeconds(AttemptDeadline(paper, start), now)
	if remaining <= 0 {
		return nil, ErrExamClosed
	}

	paper.RemainingSeconds = &remaining
	paper.ServerTime = &now
	return paper, nil
}

// Remaining returns the seconds left in a student's attempt. An attempt that
// was never started counts from now.
func (s *ExamService) Remaining(ctx context.Context, tenantID string, examID uuid.UUID, studentID int) (int, error) {
	paper, err := s.GetPaper(ctx, tenantID, examID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	start, err := s.attemptStart(ctx, config.CacheKey.AttemptStartKey(tenantID, examID.String(), studentID))
	if errors.Is(err, redis.Nil) {
		start = now
	} else if err != nil {
		return 0, err
	}
	return RemainingSeconds(AttemptDeadline(paper, start), now), nil
}

// Deadline returns the attempt deadline, or the exam end when the student
// never opened the paper.
func (s *ExamService) Deadline(ctx context.Context, paper *model.ExamDefinition, tenantID string, studentID int) (time.Time, error) {
	start, err := s.attemptStart(ctx, config.CacheKey.AttemptStartKey(tenantID, paper.ID.String(), studentID))
	if errors.Is(err, redis.Nil) {
		return paper.EndTime, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return AttemptDeadline(paper, start), nil
}

func (s *ExamService) attemptStart(ctx context.Context, key string) (time.Time, error) {
	ms, err := s.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("get attempt start: %w", err)
	}
	return time.UnixMilli(ms), nil
}
