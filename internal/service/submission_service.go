package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/events"
	"github.com/stemsi/exstem-attempt/internal/model"
)

var (
	ErrInvalidOption        = errors.New("answer refers to an unknown question or option")
	ErrSubmissionInProgress = errors.New("submission is being processed")
)

// submitLockTTL bounds how long a crashed submit can block a retry.
const submitLockTTL = 30 * time.Second

// EventPublisher emits submission events.
type EventPublisher interface {
	PublishExamSubmitted(ctx context.Context, ev *events.ExamSubmitted) error
}

// SubmissionService grades and accepts submissions, at most once per
// student and exam.
type SubmissionService struct {
	exams *ExamService
	rdb   *redis.Client
	bus   EventPublisher
	grace time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(exams *ExamService, rdb *redis.Client, bus EventPublisher, cfg *config.Config, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		exams: exams,
		rdb:   rdb,
		bus:   bus,
		grace: cfg.SubmitGrace,
		now:   time.Now,
		log:   log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit grades req for the student. A repeated submit returns the first
// acknowledgment with Duplicate set; a submit racing an unfinished one
// returns ErrSubmissionInProgress.
func (s *SubmissionService) Submit(ctx context.Context, tenantID string, studentID int, req *model.SubmitRequest) (*model.SubmitAck, error) {
	paper, err := s.exams.GetPaper(ctx, tenantID, req.ExamID)
	if err != nil {
		return nil, err
	}

	id := req.ExamID.String()
	ackKey := config.CacheKey.SubmissionAckKey(tenantID, id, studentID)

	// A repeat returns the stored acknowledgment whatever it carries.
	if ack, err := s.storedAck(ctx, ackKey); err != nil || ack != nil {
		return ack, err
	}
	if err := validateAnswers(paper, req.Answers); err != nil {
		return nil, err
	}

	now := s.now()
	if now.Before(paper.StartTime) {
		return nil, ErrExamNotStarted
	}
	deadline, err := s.exams.Deadline(ctx, paper, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	if now.After(deadline.Add(s.grace)) {
		return nil, ErrExamClosed
	}

	lockKey := config.CacheKey.SubmissionLockKey(tenantID, id, studentID)
	locked, err := s.rdb.SetNX(ctx, lockKey, now.Unix(), submitLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !locked {
		if ack, err := s.storedAck(ctx, ackKey); err != nil || ack != nil {
			return ack, err
		}
		return nil, ErrSubmissionInProgress
	}

	ack, sub, err := s.grade(ctx, paper, tenantID, studentID, req, now)
	if err == nil {
		err = s.accept(ctx, paper, ackKey, ack, sub)
	}
	if err != nil {
		// Nothing was stored; let the student retry.
		if delErr := s.rdb.Del(ctx, lockKey).Err(); delErr != nil {
			s.log.Error().Err(delErr).Str("key", lockKey).Msg("Failed to release submit lock")
		}
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("exam_id", id).
		Int("student_id", studentID).
		Int("answered", ack.Answered).
		Float64("score", ack.Score).
		Msg("Submission accepted")

	ev := &events.ExamSubmitted{
		SubmissionID: ack.SubmissionID,
		TenantID:     tenantID,
		ExamID:       paper.ID,
		ExamTitle:    paper.Title,
		StudentID:    studentID,
		Answered:     ack.Answered,
		Score:        ack.Score,
		MaxScore:     ack.MaxScore,
		SubmittedAt:  ack.SubmittedAt,
	}
	if err := s.bus.PublishExamSubmitted(ctx, ev); err != nil {
		// The submission is durable in the queue; only the notification is lost.
		s.log.Warn().Err(err).Str("submission_id", ack.SubmissionID.String()).Msg("Failed to publish submission event")
	}
	return ack, nil
}

func validateAnswers(paper *model.ExamDefinition, answers []model.AnswerEntry) error {
	byID := make(map[uuid.UUID]*model.Question, len(paper.Questions))
	for i := range paper.Questions {
		byID[paper.Questions[i].ID] = &paper.Questions[i]
	}

	seen := make(map[uuid.UUID]bool, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return fmt.Errorf("%w: question %s", ErrInvalidOption, a.QuestionID)
		}
		if !q.HasOption(a.SelectedOption) {
			return fmt.Errorf("%w: option %d of question %s", ErrInvalidOption, a.SelectedOption, a.QuestionID)
		}
		if seen[a.QuestionID] {
			return fmt.Errorf("%w: question %s answered twice", ErrInvalidOption, a.QuestionID)
		}
		seen[a.QuestionID] = true
	}
	return nil
}

func (s *SubmissionService) grade(ctx context.Context, paper *model.ExamDefinition, tenantID string, studentID int, req *model.SubmitRequest, now time.Time) (*model.SubmitAck, *model.Submission, error) {
	key, err := s.exams.GetAnswerKey(ctx, tenantID, paper.ID)
	if err != nil {
		return nil, nil, err
	}

	marks := make(map[uuid.UUID]float64, len(paper.Questions))
	for _, q := range paper.Questions {
		marks[q.ID] = q.Marks
	}

	var score float64
	for _, a := range req.Answers {
		if correct, ok := key[a.QuestionID]; ok && correct == a.SelectedOption {
			score += marks[a.QuestionID]
		}
	}

	ack := &model.SubmitAck{
		SubmissionID: uuid.New(),
		ExamID:       paper.ID,
		Answered:     len(req.Answers),
		Score:        score,
		MaxScore:     paper.MaxScore(),
		SubmittedAt:  now.UTC(),
	}
	sub := &model.Submission{
		ID:          ack.SubmissionID,
		TenantID:    tenantID,
		ExamID:      paper.ID,
		StudentID:   studentID,
		Answers:     req.Answers,
		Score:       ack.Score,
		MaxScore:    ack.MaxScore,
		SubmittedAt: ack.SubmittedAt,
	}
	return ack, sub, nil
}

// accept stores the acknowledgment and queues the submission for
// persistence in one MULTI block.
func (s *SubmissionService) accept(ctx context.Context, paper *model.ExamDefinition, ackKey string, ack *model.SubmitAck, sub *model.Submission) error {
	ackJSON, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	subJSON, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	ttl := cacheTTL(paper.EndTime, s.now()) + 7*24*time.Hour
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ackKey, ackJSON, ttl)
		pipe.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, subJSON)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store submission: %w", err)
	}
	return nil
}

func (s *SubmissionService) storedAck(ctx context.Context, key string) (*model.SubmitAck, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	var ack model.SubmitAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	ack.Duplicate = true
	return &ack, nil
}
