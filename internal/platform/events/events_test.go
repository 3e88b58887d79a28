package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaPublisherWritesEnvelope(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaPublisher(w, "kpiflow.")

	evt := New(TopicReviewFinalized, "emp-1:Q1:2025", "hr-1", map[string]any{"finalScore": 86})
	require.NoError(t, pub.Publish(context.Background(), evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "kpiflow.review.finalized", msg.Topic)
	assert.Equal(t, "emp-1:Q1:2025", string(msg.Key))
	assert.Equal(t, "review.finalized", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, "hr-1", decoded.ActorID)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	pub := NewKafkaPublisher(&captureWriter{err: errors.New("broker down")}, "")
	err := pub.Publish(context.Background(), New(TopicRewardAssigned, "r-1", "", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish reward.assigned")
}

func TestNewPublisherWithoutBrokersIsNoop(t *testing.T) {
	pub := NewPublisher(nil, "kpiflow.")
	assert.NoError(t, pub.Publish(context.Background(), New(TopicKPIStatusChanged, "k-1", "", nil)))
	assert.NoError(t, pub.Close())
}
