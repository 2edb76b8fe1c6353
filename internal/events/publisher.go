package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/localsignal/gbp-collector/internal/pipeline"
)

// Publisher emits run summaries to a Kafka topic so downstream monitoring can
// react to failed or empty runs. Publishing is best-effort: a broker error is
// logged and never affects the run result. A nil Publisher is disabled.
type Publisher struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// New creates a publisher, or nil when no brokers are configured.
func New(brokers []string, topic string, logger *slog.Logger) *Publisher {
	if len(brokers) == 0 {
		return nil
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Publisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:     brokers,
			Topic:       topic,
			MaxAttempts: 3,
		}),
		log: logger,
	}
}

// Publish sends one run summary keyed by pipeline name.
func (p *Publisher) Publish(ctx context.Context, s pipeline.Summary) {
	if p == nil {
		return
	}

	payload, err := json.Marshal(s)
	if err != nil {
		p.log.Error("marshal run summary", slog.Any("err", err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(s.Pipeline),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publish run summary",
			slog.Any("err", err),
			slog.String("pipeline", s.Pipeline),
			slog.String("run_id", s.RunID),
		)
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		p.log.Warn("close event writer", slog.Any("err", err))
	}
}
