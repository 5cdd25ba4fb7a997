package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ─── Clock ─────────────────────────────────────────────────────────────

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

// Tick advances the clock by a second and delivers it to the latest ticker.
// It reports false when the ticker has been stopped.
func (c *fakeClock) Tick() bool {
	c.mu.Lock()
	if len(c.tickers) == 0 {
		c.mu.Unlock()
		return false
	}
	t := c.tickers[len(c.tickers)-1]
	c.now = c.now.Add(time.Second)
	now := c.now
	c.mu.Unlock()

	select {
	case t.ch <- now:
		return true
	case <-t.stopped:
		return false
	}
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// ─── Exam service ──────────────────────────────────────────────────────

type fakeService struct {
	exam     *model.ExamDefinition
	fetchErr error

	mu         sync.Mutex
	calls      int
	requests   []*model.SubmitRequest
	submitErrs []error
	release    chan struct{}
}

func (f *fakeService) FetchExam(_ context.Context, _ uuid.UUID) (*model.ExamDefinition, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.exam, nil
}

func (f *fakeService) SubmitExam(ctx context.Context, req *model.SubmitRequest) (*model.SubmitAck, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	var err error
	if len(f.submitErrs) > 0 {
		err = f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
	}
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.SubmitAck{
		SubmissionID: uuid.New(),
		ExamID:       req.ExamID,
		Answered:     len(req.Answers),
	}, nil
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeService) lastRequest() *model.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

var errNetwork = errors.New("connection reset by peer")

// ─── Fixtures ──────────────────────────────────────────────────────────

func newExam(now time.Time, durationMinutes int, untilEnd time.Duration, questions int) *model.ExamDefinition {
	exam := &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Ulangan Harian Fisika",
		SubjectName:     "Fisika",
		DurationMinutes: durationMinutes,
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(untilEnd),
	}
	for i := 0; i < questions; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:      uuid.New(),
			Text:    "Pertanyaan",
			Options: []string{"A", "B", "C", "D"},
			Marks:   1,
		})
	}
	return exam
}

func loadSession(t *testing.T, svc *fakeService, clk *fakeClock, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(clk)}, opts...)
	s, err := Load(context.Background(), svc, svc.exam.ID, opts...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}
