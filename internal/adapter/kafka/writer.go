package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Summary is the JSON value of one published daily Leq message.
type Summary struct {
	Date         string       `json:"date"`
	Zone         string       `json:"zone"`
	LeqDay       domain.Level `json:"leq_day"`
	LeqNight     domain.Level `json:"leq_night"`
	DaySamples   int          `json:"day_samples"`
	NightSamples int          `json:"night_samples"`
}

// Writer publishes daily Leq summaries to a Kafka topic.
// It implements report.Publisher.
type Writer struct {
	writer *kafkago.Writer
	policy domain.DenominatorPolicy
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic. policy is recorded on every
// message so consumers can tell count and nominal averages apart.
func NewWriter(brokers []string, topic string, policy domain.DenominatorPolicy, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, policy: policy, logger: logger}
}

// Publish sends one message per summary, keyed by date, in a single
// WriteMessages call. Republishing a date overwrites it under log compaction.
func (w *Writer) Publish(ctx context.Context, summaries []domain.DailyLeq) error {
	if len(summaries) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(summaries))
	for i := range summaries {
		msg, err := serializeToMessage(summaries[i], w.policy)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d summaries to %s: %w", len(msgs), w.writer.Topic, err)
	}
	w.logger.Info("published daily summaries", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a DailyLeq into a Kafka message.
func serializeToMessage(s domain.DailyLeq, policy domain.DenominatorPolicy) (kafkago.Message, error) {
	data, err := json.Marshal(Summary{
		Date:         s.DateString(),
		Zone:         s.Date.Location().String(),
		LeqDay:       s.Day,
		LeqNight:     s.Night,
		DaySamples:   s.DaySamples,
		NightSamples: s.NightSamples,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize daily summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.DateString()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "policy", Value: []byte(policy.String())},
		},
	}, nil
}
