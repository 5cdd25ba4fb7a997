package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/events"
	"github.com/stemsi/exstem-attempt/internal/model"
)

type fakeNotificationStore struct {
	mu       sync.Mutex
	failures int
	byKey    map[string]*model.Notification
	calls    int
}

func (f *fakeNotificationStore) Create(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	if f.byKey == nil {
		f.byKey = make(map[string]*model.Notification)
	}
	if _, ok := f.byKey[n.DedupKey]; !ok {
		f.byKey[n.DedupKey] = n
	}
	return nil
}

func (f *fakeNotificationStore) snapshot() (int, map[string]*model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*model.Notification, len(f.byKey))
	for k, v := range f.byKey {
		out[k] = v
	}
	return f.calls, out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startNotificationWorker(t *testing.T, store NotificationStore) *events.Bus {
	t.Helper()
	bus := events.NewInProcessBus("exam.submitted", zerolog.Nop())
	w := NewNotificationWorker(bus, store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = bus.Close()
	})
	// The in-process bus drops messages published before the subscription.
	time.Sleep(50 * time.Millisecond)
	return bus
}

func submittedEvent() *events.ExamSubmitted {
	return &events.ExamSubmitted{
		SubmissionID: uuid.New(),
		TenantID:     "sman1",
		ExamID:       uuid.New(),
		ExamTitle:    "Fisika Bab 3",
		StudentID:    42,
		Answered:     18,
		Score:        15,
		MaxScore:     20,
		SubmittedAt:  time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
}

func TestNotificationWorkerCreatesNotification(t *testing.T) {
	store := &fakeNotificationStore{}
	bus := startNotificationWorker(t, store)

	ev := submittedEvent()
	if err := bus.PublishExamSubmitted(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	key := "EXAM_SUBMITTED:" + ev.SubmissionID.String()
	waitFor(t, func() bool {
		_, got := store.snapshot()
		return got[key] != nil
	})

	_, got := store.snapshot()
	n := got[key]
	if n.TenantID != "sman1" || n.UserID != 42 || n.Kind != model.NotificationExamSubmitted {
		t.Fatalf("notification = %+v", n)
	}
	if !strings.Contains(n.Body, "Fisika Bab 3") || !strings.Contains(n.Body, "18 soal") {
		t.Fatalf("body = %q", n.Body)
	}
}

func TestNotificationWorkerIsIdempotent(t *testing.T) {
	store := &fakeNotificationStore{}
	bus := startNotificationWorker(t, store)

	ev := submittedEvent()
	for i := 0; i < 2; i++ {
		if err := bus.PublishExamSubmitted(context.Background(), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	waitFor(t, func() bool {
		calls, _ := store.snapshot()
		return calls >= 2
	})
	if _, got := store.snapshot(); len(got) != 1 {
		t.Fatalf("stored %d notifications, want 1", len(got))
	}
}

func TestNotificationWorkerRetriesOnStoreFailure(t *testing.T) {
	store := &fakeNotificationStore{failures: 1}
	bus := startNotificationWorker(t, store)

	ev := submittedEvent()
	if err := bus.PublishExamSubmitted(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		_, got := store.snapshot()
		return len(got) == 1
	})
	if calls, _ := store.snapshot(); calls < 2 {
		t.Fatalf("Create called %d times, want a retry after the failure", calls)
	}
}

func TestNotificationWorkerAcksForeignEvents(t *testing.T) {
	store := &fakeNotificationStore{}
	w := NewNotificationWorker(nil, store, zerolog.Nop())

	msg := message.NewMessage(uuid.NewString(), []byte(`{}`))
	msg.Metadata.Set(events.MetaEventType, "exam.published")
	w.handle(context.Background(), msg)

	select {
	case <-msg.Acked():
	default:
		t.Fatal("foreign event was not acked")
	}
	if calls, _ := store.snapshot(); calls != 0 {
		t.Fatalf("Create called %d times for a foreign event", calls)
	}
}

func TestNotificationWorkerAcksPoisonMessage(t *testing.T) {
	store := &fakeNotificationStore{}
	w := NewNotificationWorker(nil, store, zerolog.Nop())

	msg := message.NewMessage(uuid.NewString(), []byte(`not json`))
	w.handle(context.Background(), msg)

	select {
	case <-msg.Acked():
	default:
		t.Fatal("poison message was not acked")
	}
}
