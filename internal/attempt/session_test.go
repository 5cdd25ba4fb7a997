package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

func TestInitialRemaining(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	intPtr := func(n int) *int { return &n }

	tests := []struct {
		name     string
		duration int
		untilEnd time.Duration
		server   *int
		want     int
	}{
		{name: "clamped by end time", duration: 60, untilEnd: 10 * time.Second, want: 10},
		{name: "full duration", duration: 30, untilEnd: 2 * time.Hour, want: 1800},
		{name: "fractional second floors", duration: 60, untilEnd: 10*time.Second + 900*time.Millisecond, want: 10},
		{name: "server budget wins", duration: 60, untilEnd: time.Hour, server: intPtr(125), want: 125},
		{name: "server budget never extends", duration: 1, untilEnd: time.Hour, server: intPtr(600), want: 60},
		{name: "already closed", duration: 60, untilEnd: -5 * time.Second, want: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exam := &model.ExamDefinition{
				DurationMinutes:  tt.duration,
				EndTime:          now.Add(tt.untilEnd),
				RemainingSeconds: tt.server,
			}
			if got := InitialRemaining(exam, now); got != tt.want {
				t.Errorf("InitialRemaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadClampsToEndTime(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, 10*time.Second, 3)}

	s := loadSession(t, svc, clk)

	if got := s.Remaining(); got != 10 {
		t.Errorf("Remaining = %d, want 10", got)
	}
	if got := s.Phase(); got != PhaseInProgress {
		t.Errorf("Phase = %s, want IN_PROGRESS", got)
	}
}

func TestLoadClosedExam(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, -time.Minute, 3)}

	s := newSession(svc, WithClock(clk))
	err := s.load(context.Background(), svc.exam.ID)

	if !errors.Is(err, ErrExamClosed) {
		t.Fatalf("err = %v, want ErrExamClosed", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("Phase = %s, want FAILED", s.Phase())
	}
	if clk.tickerCount() != 0 {
		t.Error("countdown must not start for a closed exam")
	}

	got, err := Load(context.Background(), svc, svc.exam.ID, WithClock(clk))
	if got != nil || !errors.Is(err, ErrExamClosed) {
		t.Errorf("Load = (%v, %v), want (nil, ErrExamClosed)", got, err)
	}
}

func TestLoadPassesThroughServerClosed(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{fetchErr: ErrExamClosed}

	_, err := Load(context.Background(), svc, uuid.New(), WithClock(clk))
	if !errors.Is(err, ErrExamClosed) {
		t.Fatalf("err = %v, want ErrExamClosed", err)
	}
	if errors.Is(err, ErrFetchFailed) {
		t.Error("closed exam must not be reported as a fetch failure")
	}
}

func TestLoadFetchFailed(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{fetchErr: errNetwork}

	s := newSession(svc, WithClock(clk))
	err := s.load(context.Background(), uuid.New())

	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, errNetwork) {
		t.Fatalf("err = %v, want ErrFetchFailed wrapping the cause", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("Phase = %s, want FAILED", s.Phase())
	}
	if _, err := s.Submit(context.Background(), UserInitiated); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("Submit after load failure = %v, want ErrNotInProgress", err)
	}
	if svc.callCount() != 0 {
		t.Error("no submission may be sent after a load failure")
	}
}

func TestLoadMalformedExam(t *testing.T) {
	clk := newFakeClock()
	exam := newExam(clk.Now(), 60, time.Hour, 2)
	exam.Questions[1].Options = nil
	svc := &fakeService{exam: exam}

	_, err := Load(context.Background(), svc, exam.ID, WithClock(clk))
	if !errors.Is(err, ErrMalformedExam) {
		t.Fatalf("err = %v, want ErrMalformedExam", err)
	}
	if clk.tickerCount() != 0 {
		t.Error("countdown must not start for a malformed exam")
	}
}

func TestLoadNotStarted(t *testing.T) {
	clk := newFakeClock()
	exam := newExam(clk.Now(), 60, 2*time.Hour, 1)
	exam.StartTime = clk.Now().Add(time.Minute)
	svc := &fakeService{exam: exam}

	_, err := Load(context.Background(), svc, exam.ID, WithClock(clk))
	if !errors.Is(err, ErrExamNotStarted) {
		t.Fatalf("err = %v, want ErrExamNotStarted", err)
	}
}

func TestLoadTrustsServerBudgetOverLaggingClock(t *testing.T) {
	clk := newFakeClock()
	exam := newExam(clk.Now(), 60, 2*time.Hour, 1)
	// The local clock is 20s behind the start the server has already passed.
	exam.StartTime = clk.Now().Add(20 * time.Second)
	budget := 3600
	exam.RemainingSeconds = &budget
	svc := &fakeService{exam: exam}

	s := loadSession(t, svc, clk)
	if s.Phase() != PhaseInProgress {
		t.Fatalf("Phase = %s, want IN_PROGRESS", s.Phase())
	}
	if got := s.Remaining(); got != 3600 {
		t.Errorf("Remaining = %d, want 3600", got)
	}
}

func TestSelectOptionLastWriteWins(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, time.Hour, 2)}
	s := loadSession(t, svc, clk)
	qid := svc.exam.Questions[0].ID

	if err := s.SelectOption(qid, 1); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if err := s.SelectOption(qid, 3); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}

	answers := s.Answers()
	if len(answers) != 1 {
		t.Fatalf("len(answers) = %d, want 1", len(answers))
	}
	if answers[qid] != 3 {
		t.Errorf("answers[q] = %d, want 3", answers[qid])
	}
}

func TestSelectOptionRejectsInvalid(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, time.Hour, 1)}
	s := loadSession(t, svc, clk)
	qid := svc.exam.Questions[0].ID

	tests := []struct {
		name string
		qid  uuid.UUID
		idx  int
	}{
		{name: "negative index", qid: qid, idx: -1},
		{name: "past last option", qid: qid, idx: 4},
		{name: "unknown question", qid: uuid.New(), idx: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SelectOption(tt.qid, tt.idx); !errors.Is(err, ErrInvalidOption) {
				t.Errorf("err = %v, want ErrInvalidOption", err)
			}
		})
	}

	if len(s.Answers()) != 0 {
		t.Error("rejected selections must not be stored")
	}
}

func TestSubmitOmitsUnansweredQuestions(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, time.Hour, 3)}
	s := loadSession(t, svc, clk)
	second := svc.exam.Questions[1].ID

	if err := s.SelectOption(second, 2); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if _, err := s.Submit(context.Background(), UserInitiated); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := svc.lastRequest()
	if req.ExamID != svc.exam.ID {
		t.Errorf("ExamID = %s, want %s", req.ExamID, svc.exam.ID)
	}
	want := []model.AnswerEntry{{QuestionID: second, SelectedOption: 2}}
	if len(req.Answers) != 1 || req.Answers[0] != want[0] {
		t.Errorf("Answers = %+v, want %+v", req.Answers, want)
	}
}

func TestPayloadKeepsQuestionOrder(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, time.Hour, 4)}
	s := loadSession(t, svc, clk)
	qs := svc.exam.Questions

	for _, i := range []int{3, 0, 2} {
		if err := s.SelectOption(qs[i].ID, i); err != nil {
			t.Fatalf("SelectOption: %v", err)
		}
	}

	got := s.Payload().Answers
	wantOrder := []uuid.UUID{qs[0].ID, qs[2].ID, qs[3].ID}
	if len(got) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].QuestionID != id {
			t.Errorf("entry %d = %s, want %s", i, got[i].QuestionID, id)
		}
	}
}

func TestSubmitAtMostOnce(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{
		exam:    newExam(clk.Now(), 60, time.Hour, 2),
		release: make(chan struct{}),
	}
	s := loadSession(t, svc, clk)

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		cause := UserInitiated
		if i%2 == 1 {
			cause = TimeExpired
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Submit(context.Background(), cause)
			switch {
			case err == nil:
				mu.Lock()
				successes++
				mu.Unlock()
			case errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrAlreadySubmitted):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	// Let the winner reach the network before releasing it.
	deadline := time.Now().Add(2 * time.Second)
	for svc.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(svc.release)
	wg.Wait()

	if got := svc.callCount(); got != 1 {
		t.Errorf("network submissions = %d, want 1", got)
	}
	if successes != 1 {
		t.Errorf("successful Submit calls = %d, want 1", successes)
	}
	if s.Phase() != PhaseCompleted {
		t.Errorf("Phase = %s, want COMPLETED", s.Phase())
	}

	if _, err := s.Submit(context.Background(), TimeExpired); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Submit after completion = %v, want ErrAlreadySubmitted", err)
	}
	if got := svc.callCount(); got != 1 {
		t.Errorf("network submissions after completion = %d, want 1", got)
	}
}

func TestCountdownToZeroSubmitsOnce(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, 2*time.Second, 1)}

	ticks := make(chan int, 8)
	expired := make(chan error, 1)
	s := loadSession(t, svc, clk,
		WithTickObserver(func(remaining int) { ticks <- remaining }),
		WithSubmitObserver(func(_ *model.SubmitAck, err error) { expired <- err }),
	)

	if s.Remaining() != 2 {
		t.Fatalf("Remaining = %d, want 2", s.Remaining())
	}

	clk.Tick()
	if got := waitFor(t, ticks); got != 1 {
		t.Errorf("after first tick remaining = %d, want 1", got)
	}
	clk.Tick()
	if got := waitFor(t, ticks); got != 0 {
		t.Errorf("after second tick remaining = %d, want 0", got)
	}

	if err := waitFor(t, expired); err != nil {
		t.Fatalf("auto-submit: %v", err)
	}
	if got := svc.callCount(); got != 1 {
		t.Errorf("network submissions = %d, want 1", got)
	}
	if s.Phase() != PhaseCompleted {
		t.Errorf("Phase = %s, want COMPLETED", s.Phase())
	}

	clk.Tick()
	if got := s.Remaining(); got != 0 {
		t.Errorf("Remaining = %d, must not go negative", got)
	}
	if got := svc.callCount(); got != 1 {
		t.Errorf("network submissions after extra tick = %d, want 1", got)
	}
}

func TestNoTicksAfterTerminalPhase(t *testing.T) {
	tests := []struct {
		name      string
		submitErr error
		want      Phase
	}{
		{name: "completed", want: PhaseCompleted},
		{name: "failed", submitErr: errNetwork, want: PhaseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newFakeClock()
			svc := &fakeService{exam: newExam(clk.Now(), 60, time.Hour, 1)}
			if tt.submitErr != nil {
				svc.submitErrs = []error{tt.submitErr}
			}
			ticks := make(chan int, 8)
			s := loadSession(t, svc, clk, WithTickObserver(func(r int) { ticks <- r }))

			clk.Tick()
			waitFor(t, ticks)
			before := s.Remaining()

			_, _ = s.Submit(context.Background(), UserInitiated)
			if s.Phase() != tt.want {
				t.Fatalf("Phase = %s, want %s", s.Phase(), tt.want)
			}

			for i := 0; i < 5; i++ {
				clk.Tick()
			}
			if got := s.Remaining(); got != before {
				t.Errorf("Remaining changed after %s: %d → %d", tt.want, before, got)
			}
		})
	}
}

func TestSubmitFailureAllowsManualRetry(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{
		exam:       newExam(clk.Now(), 60, time.Hour, 1),
		submitErrs: []error{errNetwork},
	}
	s := loadSession(t, svc, clk)
	if err := s.SelectOption(svc.exam.Questions[0].ID, 0); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}

	_, err := s.Submit(context.Background(), UserInitiated)
	if !errors.Is(err, ErrSubmissionFailed) || !errors.Is(err, errNetwork) {
		t.Fatalf("err = %v, want ErrSubmissionFailed wrapping the cause", err)
	}
	if s.Phase() != PhaseFailed {
		t.Fatalf("Phase = %s, want FAILED", s.Phase())
	}
	if !errors.Is(s.Err(), ErrSubmissionFailed) {
		t.Errorf("Err() = %v", s.Err())
	}

	if _, err := s.Submit(context.Background(), TimeExpired); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("timer retry = %v, want ErrNotInProgress", err)
	}
	if err := s.SelectOption(svc.exam.Questions[0].ID, 1); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("SelectOption while failed = %v, want ErrNotInProgress", err)
	}

	ack, err := s.Submit(context.Background(), UserInitiated)
	if err != nil {
		t.Fatalf("manual retry: %v", err)
	}
	if ack.Answered != 1 {
		t.Errorf("ack.Answered = %d, want 1", ack.Answered)
	}
	if got := svc.callCount(); got != 2 {
		t.Errorf("network submissions = %d, want 2", got)
	}
	if res, ok := s.Result(); !ok || res != ack {
		t.Error("Result must expose the acknowledgment")
	}
}

func TestExpiryFailureThenManualRetry(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{
		exam:       newExam(clk.Now(), 60, time.Second, 1),
		submitErrs: []error{errNetwork},
	}
	expired := make(chan error, 1)
	s := loadSession(t, svc, clk, WithSubmitObserver(func(_ *model.SubmitAck, err error) { expired <- err }))

	clk.Tick()
	err := waitFor(t, expired)
	if !errors.Is(err, ErrSubmissionFailedOnExpiry) {
		t.Fatalf("auto-submit err = %v, want ErrSubmissionFailedOnExpiry", err)
	}
	if s.Phase() != PhaseFailed {
		t.Fatalf("Phase = %s, want FAILED", s.Phase())
	}

	if _, err := s.Submit(context.Background(), UserInitiated); err != nil {
		t.Fatalf("manual retry after expiry: %v", err)
	}
	if s.Phase() != PhaseCompleted {
		t.Errorf("Phase = %s, want COMPLETED", s.Phase())
	}
	if s.Remaining() != 0 {
		t.Errorf("elapsed countdown must not be restored, got %d", s.Remaining())
	}
}

func TestExpiryReportsServerConflict(t *testing.T) {
	clk := newFakeClock()
	// A 409 from the server maps onto the same sentinel the local gate uses.
	svc := &fakeService{
		exam:       newExam(clk.Now(), 60, time.Second, 1),
		submitErrs: []error{fmt.Errorf("submit exam: %w", ErrSubmissionInFlight)},
	}
	expired := make(chan error, 1)
	s := loadSession(t, svc, clk, WithSubmitObserver(func(_ *model.SubmitAck, err error) { expired <- err }))

	clk.Tick()
	err := waitFor(t, expired)
	if !errors.Is(err, ErrSubmissionFailedOnExpiry) {
		t.Fatalf("auto-submit err = %v, want ErrSubmissionFailedOnExpiry", err)
	}
	if s.Phase() != PhaseFailed || svc.callCount() != 1 {
		t.Fatalf("Phase = %s, calls = %d; want FAILED after one call", s.Phase(), svc.callCount())
	}
}

func TestSelectOptionAfterCompletion(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, time.Hour, 1)}
	s := loadSession(t, svc, clk)

	if _, err := s.Submit(context.Background(), UserInitiated); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.SelectOption(svc.exam.Questions[0].ID, 0); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("err = %v, want ErrNotInProgress", err)
	}
}

func TestCloseStopsCountdown(t *testing.T) {
	clk := newFakeClock()
	svc := &fakeService{exam: newExam(clk.Now(), 60, time.Hour, 1)}
	s := loadSession(t, svc, clk)
	before := s.Remaining()

	s.Close()
	s.Close()
	for i := 0; i < 3; i++ {
		clk.Tick()
	}

	if got := s.Remaining(); got != before {
		t.Errorf("Remaining changed after Close: %d → %d", before, got)
	}
	if svc.callCount() != 0 {
		t.Error("Close must not submit")
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{
		PhaseLoading:    "LOADING",
		PhaseInProgress: "IN_PROGRESS",
		PhaseSubmitting: "SUBMITTING",
		PhaseCompleted:  "COMPLETED",
		PhaseFailed:     "FAILED",
	} {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}
