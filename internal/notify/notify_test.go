package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/compare"
	"github.com/roach88/recon/internal/state"
)

func sampleNotification() Notification {
	return Notification{
		Kind:   KindDriftDetected,
		Module: "products",
		ID:     "42",
		Discrepancies: []compare.Discrepancy{
			{Field: "stock", Expected: state.Int(10), Actual: state.Int(8)},
		},
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNotificationKey(t *testing.T) {
	assert.Equal(t, "products/42", sampleNotification().Key())
}

func TestEncode(t *testing.T) {
	data, err := Encode(sampleNotification())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kind": "reconciliation.drift_detected",
		"module": "products",
		"id": "42",
		"discrepancies": [{"field": "stock", "expected": 10, "actual": 8}],
		"occurred_at": "2024-01-02T03:04:05Z"
	}`, string(data))
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, p.Publish(context.Background(), sampleNotification()))

	out := buf.String()
	assert.Contains(t, out, "kind=reconciliation.drift_detected")
	assert.Contains(t, out, "module=products")
	assert.Contains(t, out, "discrepancies=[stock]")
	assert.NoError(t, p.Close())
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), sampleNotification()))
	assert.NoError(t, p.Close())
}

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisherWithWriter(w, "recon.notifications")

	require.NoError(t, p.Publish(context.Background(), sampleNotification()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "recon.notifications", msg.Topic)
	assert.Equal(t, "products/42", string(msg.Key))
	assert.Equal(t, "kind", msg.Headers[0].Key)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "42", decoded["id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&recordingWriter{err: boom}, "t")

	err := p.Publish(context.Background(), sampleNotification())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "products/42")
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "t")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "t")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
