// Package bus carries inventory-release events between services over
// Kafka. Delivery is at-least-once: the consumer commits an offset only
// after its handler returns nil, so a crash mid-handle redelivers the
// message and the handler's idempotency absorbs the duplicate.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/domain"
)

// DefaultReleaseTopic is the topic release events travel on unless
// configuration overrides it.
const DefaultReleaseTopic = "inventory.release"

type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger,
	}
}

// PublishRelease writes the event keyed by order id, so all events for
// one order land on one partition.
func (p *Publisher) PublishRelease(ctx context.Context, ev domain.ReleaseEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal release event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: value,
	}); err != nil {
		return fmt.Errorf("publish release event: %w", err)
	}
	p.logger.Info("release event published",
		zap.String("order_id", ev.OrderID),
		zap.String("reason", string(ev.Reason)),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// ReleaseHandler processes one release event. Returning nil acks the
// message; an error leaves it uncommitted for redelivery.
type ReleaseHandler func(ctx context.Context, ev domain.ReleaseEvent) error

type Consumer struct {
	reader  *kafka.Reader
	handler ReleaseHandler
	logger  *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, handler ReleaseHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		handler: handler,
		logger:  logger,
	}
}

// Run consumes messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("release event consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("release event consumer stopped")
				return nil
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			continue
		}

		var ev domain.ReleaseEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			// A malformed message would block the partition forever;
			// log it and move past.
			c.logger.Error("dropping malformed release event",
				zap.ByteString("value", msg.Value),
				zap.Error(err),
			)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("commit failed", zap.Error(err))
			}
			continue
		}

		if err := c.handler(ctx, ev); err != nil {
			c.logger.Error("release handler failed, leaving message uncommitted",
				zap.String("order_id", ev.OrderID),
				zap.Error(err),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit failed", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
