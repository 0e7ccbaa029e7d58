package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/valuatech/portfolio-service/internal/engine"
	"github.com/valuatech/portfolio-service/internal/models"
)

// Producer handles publishing portfolio events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishTransactionRecorded publishes a transaction recorded event
func (p *Producer) PublishTransactionRecorded(ctx context.Context, req models.TransactionRequest) error {
	event := models.TransactionEvent{
		EventType: models.EventTransactionRecorded,
		Request:   &req,
		Portfolio: req.Portfolio,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, req.Portfolio, event)
}

// PublishRecalculationCompleted publishes a recalculation completed event
// with its summary counters
func (p *Producer) PublishRecalculationCompleted(ctx context.Context, summary *engine.RecalcSummary) error {
	event := models.RecalculationEvent{
		EventType:             models.EventRecalculationCompleted,
		Portfolio:             summary.Portfolio,
		CutoverDate:           summary.CutoverDate,
		RowsWritten:           summary.RowsWritten,
		DatesSkipped:          summary.DatesSkipped,
		NegativeQuantitySkips: summary.NegativeQuantitySkips,
		PrecisionFailures:     summary.PrecisionFailures,
		Timestamp:             time.Now(),
	}
	return p.publish(ctx, summary.Portfolio, event)
}

func (p *Producer) publish(ctx context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
