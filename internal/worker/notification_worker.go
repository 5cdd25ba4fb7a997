package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/events"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// NotificationStore writes notifications. Create must ignore a duplicate
// DedupKey.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Subscriber is satisfied by *events.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// NotificationWorker turns exam.submitted events into student notifications.
type NotificationWorker struct {
	sub   Subscriber
	store NotificationStore
	log   zerolog.Logger
}

func NewNotificationWorker(sub Subscriber, store NotificationStore, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		sub:   sub,
		store: store,
		log:   log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start consumes until ctx is cancelled or the subscription closes.
func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.sub.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	w.log.Info().Msg("NotificationWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("NotificationWorker stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *NotificationWorker) handle(ctx context.Context, msg *message.Message) {
	if t := msg.Metadata.Get(events.MetaEventType); t != "" && t != events.TypeExamSubmitted {
		msg.Ack()
		return
	}

	ev, err := events.DecodeExamSubmitted(msg)
	if err != nil {
		// Poison message; redelivery would fail the same way.
		w.log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Invalid event payload")
		msg.Ack()
		return
	}

	n := buildSubmittedNotification(ev)

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.store.Create(writeCtx, n); err != nil {
		w.log.Error().Err(err).
			Str("submission_id", ev.SubmissionID.String()).
			Msg("Failed to store notification")
		msg.Nack()
		return
	}

	msg.Ack()
}

func buildSubmittedNotification(ev *events.ExamSubmitted) *model.Notification {
	return &model.Notification{
		ID:       uuid.New(),
		TenantID: ev.TenantID,
		UserID:   ev.StudentID,
		Kind:     model.NotificationExamSubmitted,
		Title:    "Ujian terkirim",
		Body: fmt.Sprintf("Jawaban ujian \"%s\" telah diterima (%d soal dijawab) pada %s.",
			ev.ExamTitle, ev.Answered, ev.SubmittedAt.Format("02/01/2006 15:04")),
		DedupKey:  fmt.Sprintf("%s:%s", model.NotificationExamSubmitted, ev.SubmissionID),
		CreatedAt: time.Now(),
	}
}
