package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafka_Publish(t *testing.T) {
	fw := &fakeWriter{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	k := &Kafka{writer: fw, now: func() time.Time { return fixed }}

	est := 60
	err := k.Publish(context.Background(), Event{
		Type:       TypeLikelihoodEstimated,
		TenantID:   "user_1",
		Kind:       "product",
		ArtifactID: "p1",
		Estimate:   &est,
		Customers:  3,
	})
	require.NoError(t, err)
	require.Len(t, fw.msgs, 1)

	msg := fw.msgs[0]
	assert.Equal(t, "user_1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeLikelihoodEstimated, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "p1", got.ArtifactID)
	assert.Equal(t, 60, *got.Estimate)
	assert.True(t, got.OccurredAt.Equal(fixed))

	require.NoError(t, k.Close())
	assert.True(t, fw.closed)
}

type countingWriter struct {
	fakeWriter
	calls int
}

func (c *countingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	c.calls++
	return c.fakeWriter.WriteMessages(ctx, msgs...)
}

func TestKafka_PublishBatchesInOneWrite(t *testing.T) {
	cw := &countingWriter{}
	k := &Kafka{writer: cw, now: time.Now}

	es := []Event{
		{Type: TypeActivityRecorded, TenantID: "user_1", CustomerID: "c1", ArtifactID: "p1"},
		{Type: TypeActivityRecorded, TenantID: "user_1", CustomerID: "c2", CampaignID: "camp1"},
		{Type: TypeActivityRecorded, TenantID: "user_1", CustomerID: "c3"},
	}
	require.NoError(t, k.Publish(context.Background(), es...))
	assert.Equal(t, 1, cw.calls)
	require.Len(t, cw.msgs, 3)

	var second Event
	require.NoError(t, json.Unmarshal(cw.msgs[1].Value, &second))
	assert.Equal(t, "c2", second.CustomerID)
	assert.Equal(t, "camp1", second.CampaignID)
	assert.False(t, second.OccurredAt.IsZero())

	require.NoError(t, k.Publish(context.Background()))
	assert.Equal(t, 1, cw.calls)
}

func TestKafka_PublishError(t *testing.T) {
	k := &Kafka{writer: &fakeWriter{err: errors.New("broker down")}, now: time.Now}
	err := k.Publish(context.Background(), Event{Type: TypeActivityRecorded, TenantID: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events: write activity.recorded")
}

func TestNew(t *testing.T) {
	assert.IsType(t, Noop{}, New(nil, "topic"))
	p := New([]string{"localhost:9092"}, "topic")
	assert.IsType(t, &Kafka{}, p)
}

func TestEmit_SwallowsErrors(t *testing.T) {
	k := &Kafka{writer: &fakeWriter{err: errors.New("broker down")}, now: time.Now}
	assert.NotPanics(t, func() {
		Emit(context.Background(), k, Event{Type: TypeActivityRecorded})
		Emit(context.Background(), nil, Event{Type: TypeActivityRecorded})
		Emit(context.Background(), Noop{}, Event{Type: TypeActivityRecorded})
	})
}
