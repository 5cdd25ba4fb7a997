// Package events carries domain events between the exam service and its
// background consumers over watermill.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
)

// Metadata keys set on every message.
const (
	MetaEventType = "event_type"
	MetaTenant    = "tenant_id"
)

const TypeExamSubmitted = "exam.submitted"

// ExamSubmitted is published once per accepted submission.
type ExamSubmitted struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	TenantID     string    `json:"tenant_id"`
	ExamID       uuid.UUID `json:"exam_id"`
	ExamTitle    string    `json:"exam_title"`
	StudentID    int       `json:"student_id"`
	Answered     int       `json:"answered"`
	Score        float64   `json:"score"`
	MaxScore     float64   `json:"max_score"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Bus publishes and subscribes on a single topic.
type Bus struct {
	pub   message.Publisher
	sub   message.Subscriber
	close func() error
	topic string
	log   zerolog.Logger
}

// NewBus connects to Kafka when brokers are configured and falls back to an
// in-process channel otherwise.
func NewBus(cfg *config.Config, log zerolog.Logger) (*Bus, error) {
	log = log.With().Str("component", "event_bus").Logger()
	wlog := NewLoggerAdapter(log)

	if len(cfg.KafkaBrokers) == 0 {
		log.Info().Str("topic", cfg.EventsTopic).Msg("Using in-process event bus")
		return NewInProcessBus(cfg.EventsTopic, log), nil
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}

	sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         config.WorkerKey.NotificationsGroup,
	}, wlog)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("kafka subscriber: %w", err)
	}

	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.EventsTopic).Msg("Kafka event bus connected")
	return &Bus{
		pub:   pub,
		sub:   sub,
		close: func() error { return errors.Join(pub.Close(), sub.Close()) },
		topic: cfg.EventsTopic,
		log:   log,
	}, nil
}

// NewInProcessBus delivers messages through a Go channel. Messages published
// while nobody subscribes are dropped.
func NewInProcessBus(topic string, log zerolog.Logger) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewLoggerAdapter(log))
	return &Bus{pub: ch, sub: ch, close: ch.Close, topic: topic, log: log}
}

// PublishExamSubmitted emits ev. The submission ID doubles as the message ID.
func (b *Bus) PublishExamSubmitted(ctx context.Context, ev *ExamSubmitted) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(ev.SubmissionID.String(), payload)
	msg.Metadata.Set(MetaEventType, TypeExamSubmitted)
	msg.Metadata.Set(MetaTenant, ev.TenantID)
	msg.SetContext(ctx)

	if err := b.pub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TypeExamSubmitted, err)
	}
	b.log.Debug().Str("submission_id", msg.UUID).Str("topic", b.topic).Msg("Event published")
	return nil
}

// Subscribe returns the message stream of the bus topic. Every message must
// be acked or nacked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.sub.Subscribe(ctx, b.topic)
}

// Close shuts down both sides of the bus.
func (b *Bus) Close() error {
	return b.close()
}

// DecodeExamSubmitted parses an exam.submitted message.
func DecodeExamSubmitted(msg *message.Message) (*ExamSubmitted, error) {
	if t := msg.Metadata.Get(MetaEventType); t != "" && t != TypeExamSubmitted {
		return nil, fmt.Errorf("unexpected event type %q", t)
	}
	var ev ExamSubmitted
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", TypeExamSubmitted, err)
	}
	return &ev, nil
}
