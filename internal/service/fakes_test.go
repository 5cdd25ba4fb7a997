package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/events"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

const testTenant = "sman1"

var examStart = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fakeExamStore struct {
	mu       sync.Mutex
	exams    map[uuid.UUID]*model.Exam
	getCalls int
}

func (f *fakeExamStore) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	e, ok := f.exams[id]
	if !ok || e.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExamStore) ListOpen(_ context.Context, now time.Time) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.Status == model.ExamStatusPublished && e.EndTime.After(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

type fakeQuestionStore struct {
	byExam map[uuid.UUID][]model.Question
}

func (f *fakeQuestionStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.byExam[examID], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []*events.ExamSubmitted
}

func (f *fakePublisher) PublishExamSubmitted(_ context.Context, ev *events.ExamSubmitted) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeResultStore struct {
	results []model.SubmissionResult
	err     error
}

func (f *fakeResultStore) ListByExam(_ context.Context, _ string, _ uuid.UUID, limit, offset int) ([]model.SubmissionResult, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	total := len(f.results)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return f.results[offset:end], total, nil
}

// fixture is a published exam with three questions worth 2, 3 and 5 marks.
// The correct option of every question is 1.
type fixture struct {
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	exams     *fakeExamStore
	questions *fakeQuestionStore
	bus       *fakePublisher
	examSvc   *ExamService
	subSvc    *SubmissionService
	exam      *model.Exam
	qs        []model.Question
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exam := &model.Exam{
		ID:              uuid.New(),
		TenantID:        testTenant,
		Title:           "Fisika Bab 3",
		SubjectName:     "Fisika",
		DurationMinutes: 60,
		StartTime:       examStart,
		EndTime:         examStart.Add(2 * time.Hour),
		Status:          model.ExamStatusPublished,
	}
	qs := []model.Question{
		{ID: uuid.New(), Text: "Satuan gaya?", Options: []string{"Joule", "Newton", "Watt"}, Marks: 2, CorrectOption: 1, OrderNum: 1},
		{ID: uuid.New(), Text: "Satuan daya?", Options: []string{"Pascal", "Watt"}, Marks: 3, CorrectOption: 1, OrderNum: 2},
		{ID: uuid.New(), Text: "Satuan energi?", Options: []string{"Volt", "Joule", "Ampere", "Ohm"}, Marks: 5, CorrectOption: 1, OrderNum: 3},
	}

	f := &fixture{
		mr:        mr,
		rdb:       rdb,
		exams:     &fakeExamStore{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}},
		questions: &fakeQuestionStore{byExam: map[uuid.UUID][]model.Question{exam.ID: qs}},
		bus:       &fakePublisher{},
		exam:      exam,
		qs:        qs,
		now:       examStart.Add(10 * time.Minute),
	}

	f.examSvc = NewExamService(f.exams, f.questions, rdb, zerolog.Nop())
	f.examSvc.now = f.clock
	f.subSvc = NewSubmissionService(f.examSvc, rdb, f.bus, &config.Config{SubmitGrace: 30 * time.Second}, zerolog.Nop())
	f.subSvc.now = f.clock
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) queueLen(t *testing.T) int64 {
	t.Helper()
	n, err := f.rdb.LLen(context.Background(), config.WorkerKey.PersistSubmissionsQueue).Result()
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func (f *fixture) submitReq(answers ...model.AnswerEntry) *model.SubmitRequest {
	if answers == nil {
		answers = []model.AnswerEntry{}
	}
	return &model.SubmitRequest{ExamID: f.exam.ID, Answers: answers}
}

func answer(q model.Question, opt int) model.AnswerEntry {
	return model.AnswerEntry{QuestionID: q.ID, SelectedOption: opt}
}

var errBoom = errors.New("boom")
