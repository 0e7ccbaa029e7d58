package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/valuatech/portfolio-service/internal/engine"
	"github.com/valuatech/portfolio-service/internal/models"
)

// TransactionProcessor drives the valuation engine for a consumed request
type TransactionProcessor interface {
	ProcessTransaction(ctx context.Context, req models.TransactionRequest) (*engine.TransactionResult, error)
}

// LedgerRepository checks for already-recorded requests
type LedgerRepository interface {
	TransactionExistsByRequestID(ctx context.Context, requestID string) (bool, error)
}

// Consumer handles consuming transaction request events from Kafka. Each
// request is processed at most once: requests carry an ID checked against
// the ledger before processing.
type Consumer struct {
	reader    *kafka.Reader
	processor TransactionProcessor
	repo      LedgerRepository
	producer  *Producer
	logger    zerolog.Logger
}

// NewConsumer creates a new Kafka consumer for transaction requests
func NewConsumer(brokers []string, topic, groupID string, processor TransactionProcessor, repo LedgerRepository, producer *Producer, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:    reader,
		processor: processor,
		repo:      repo,
		producer:  producer,
		logger:    logger.With().Str("component", "kafka-consumer").Logger(),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.reader.Config().Topic).Msg("starting kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				c.logger.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error().Err(err).Msg("error processing message")
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	c.logger.Debug().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Msg("received message")

	var event models.TransactionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal transaction event: %w", err)
	}

	if event.EventType != models.EventTransactionRequested {
		c.logger.Debug().Str("event_type", event.EventType).Msg("ignoring event type")
		return nil
	}
	if event.Request == nil {
		return fmt.Errorf("transaction request event has no request payload")
	}

	req := *event.Request

	// Check for duplicate (idempotency)
	if req.RequestID != "" {
		exists, err := c.repo.TransactionExistsByRequestID(ctx, req.RequestID)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate request: %w", err)
		}
		if exists {
			c.logger.Info().Str("request_id", req.RequestID).Msg("request already processed, skipping")
			return nil
		}
	}

	result, err := c.processor.ProcessTransaction(ctx, req)
	if err != nil {
		var missing *engine.MissingPriceError
		// A request with no exact-date price can never become valid by
		// retrying, so it is rejected and dropped rather than re-queued.
		if errors.As(err, &missing) || errors.Is(err, engine.ErrPortfolioNotFound) || errors.Is(err, engine.ErrAssetNotFound) {
			c.logger.Warn().Err(err).Str("portfolio", req.Portfolio).Msg("transaction request rejected")
			return nil
		}
		return fmt.Errorf("failed to process transaction: %w", err)
	}

	c.logger.Info().
		Str("portfolio", result.Summary.Portfolio).
		Int("rows_written", result.Summary.RowsWritten).
		Msg("transaction request processed")

	if c.producer != nil {
		if err := c.producer.PublishTransactionRecorded(ctx, req); err != nil {
			c.logger.Error().Err(err).Msg("failed to publish transaction recorded event")
		}
		if err := c.producer.PublishRecalculationCompleted(ctx, result.Summary); err != nil {
			c.logger.Error().Err(err).Msg("failed to publish recalculation event")
		}
	}

	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
