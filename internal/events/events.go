// Package events publishes domain events about scoring and outreach.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeLikelihoodEstimated = "likelihood.estimated"
	TypeActivityRecorded    = "activity.recorded"
)

// Event is the JSON envelope written to the topic.
type Event struct {
	Type       string    `json:"type"`
	TenantID   string    `json:"tenant_id"`
	Kind       string    `json:"kind,omitempty"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	Estimate   *int      `json:"estimate,omitempty"`
	Customers  int       `json:"customers,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits events. A call with several events is written as one
// batch. A failed publish is logged by the caller and never fails a request.
type Publisher interface {
	Publish(ctx context.Context, es ...Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, ...Event) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events to one topic, keyed by tenant so each tenant's
// events stay ordered within a partition.
type Kafka struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafka creates a publisher for brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		now: time.Now,
	}
}

// Publish serializes es and writes them in a single WriteMessages call.
func (k *Kafka) Publish(ctx context.Context, es ...Event) error {
	if len(es) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(es))
	for _, e := range es {
		if e.OccurredAt.IsZero() {
			e.OccurredAt = k.now().UTC()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return eris.Wrap(err, "events: marshal")
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.TenantID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return eris.Wrapf(err, "events: write %s", es[0].Type)
	}

	zap.L().Debug("events published",
		zap.String("type", es[0].Type),
		zap.String("tenant_id", es[0].TenantID),
		zap.Int("count", len(es)),
	)
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	if err := k.writer.Close(); err != nil {
		return eris.Wrap(err, "events: close")
	}
	return nil
}

// New returns a Kafka publisher when brokers are configured, else Noop.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Noop{}
	}
	return NewKafka(brokers, topic)
}

// Emit publishes es as one batch and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, es ...Event) {
	if p == nil || len(es) == 0 {
		return
	}
	if err := p.Publish(ctx, es...); err != nil {
		zap.L().Warn("events: publish failed",
			zap.String("type", es[0].Type),
			zap.Int("count", len(es)),
			zap.Error(err),
		)
	}
}
