// Package events publishes domain events to Kafka. A Publisher is always
// best effort from the caller's point of view: the write it follows has
// already committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TopicReviewFinalized  = "review.finalized"
	TopicRewardAssigned   = "reward.assigned"
	TopicKPIStatusChanged = "kpi.status_changed"
)

// Event is the envelope written as the message value.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregateId"`
	ActorID     string    `json:"actorId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
	Data        any       `json:"data"`
}

func New(eventType, aggregateID, actorID string, data any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		ActorID:     actorID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
	prefix string
}

// NewKafkaWriter builds a writer that hashes on the message key so every
// event for one aggregate lands on the same partition.
func NewKafkaWriter(brokers []string, writeTimeout time.Duration) *kafka.Writer {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           writeTimeout,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, prefix: topicPrefix}
}

func (p *KafkaPublisher) Topic(eventType string) string {
	return p.prefix + eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	msg := kafka.Message{
		Topic: p.Topic(evt.Type),
		Key:   []byte(evt.AggregateID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
func (noopPublisher) Close() error { return nil }

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers
// are configured.
func NewPublisher(brokers []string, topicPrefix string) Publisher {
	if len(brokers) == 0 {
		return noopPublisher{}
	}
	return NewKafkaPublisher(NewKafkaWriter(brokers, 5*time.Second), strings.TrimSpace(topicPrefix))
}
