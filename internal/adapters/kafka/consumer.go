package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"switchboard/pkg/logger"
)

// MessageReader is what a consumer loop needs from Kafka.
type MessageReader interface {
	ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads one topic as part of a consumer group. Offsets are
// committed in the background every CommitInterval.
type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

var _ MessageReader = (*Consumer)(nil)

// ConsumerConfig holds consumer configuration. Zero values take the defaults noted.
type ConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topic          string
	MinBytes       int           // Default: 1
	MaxBytes       int           // Default: 10MB
	MaxWait        time.Duration // Default: 1s
	CommitInterval time.Duration // Default: 1s
}

// NewConsumer creates a group reader. A new group starts from the oldest
// retained message so nothing published before the first deploy is lost.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = time.Second
	}

	log := logger.Component("kafka_consumer").With("topic", cfg.Topic, "group_id", cfg.GroupID)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		CommitInterval: cfg.CommitInterval,
		StartOffset:    kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warnf(msg, args...)
		}),
	})

	log.Infow("Kafka consumer created", "brokers", cfg.Brokers)

	return &Consumer{reader: reader, log: log}
}

// ReadMessageWithShutdownCheck returns ctx.Err() without touching the
// network when shutdown was already requested, and reports a read that
// failed because of cancellation as ctx.Err().
func (c *Consumer) ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}

	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return kafka.Message{}, ctx.Err()
		}
		return kafka.Message{}, err
	}
	return msg, nil
}

// Close leaves the group and commits pending offsets.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if err != nil {
		c.log.Warnw("Kafka consumer close failed", "error", err)
	}
	return err
}
