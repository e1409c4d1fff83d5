package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	kafkaadapter "switchboard/internal/adapters/kafka"
	"switchboard/internal/domain/usage"
	"switchboard/internal/metrics"
	"switchboard/pkg/backoff"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// UsageStore is a buffered usage.Repository with a background flush loop.
type UsageStore interface {
	Store(ctx context.Context, rec *usage.Record) error
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// UsageConsumer reads usage events from Kafka and writes them to ClickHouse in batches
type UsageConsumer struct {
	consumer kafkaadapter.MessageReader
	store    UsageStore
	backoff  *backoff.Manager
	log      *logger.Logger
}

// NewUsageConsumer creates a new usage consumer
func NewUsageConsumer(consumer kafkaadapter.MessageReader, store UsageStore, log *logger.Logger) *UsageConsumer {
	if log == nil {
		log = logger.Component("usage_consumer")
	}
	return &UsageConsumer{
		consumer: consumer,
		store:    store,
		backoff:  backoff.NewManager(backoff.Config{MinBackoff: 100 * time.Millisecond, MaxBackoff: 30 * time.Second}, log),
		log:      log,
	}
}

// Start consumes until ctx is cancelled, then stops the batch writer and
// closes the reader.
func (c *UsageConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting usage consumer...")

	c.store.Start(ctx)

	defer func() {
		if err := c.consumer.Close(); err != nil {
			c.log.Errorw("Failed to close usage consumer", "error", err)
		}
	}()

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.store.Stop(stopCtx); err != nil {
			c.log.Errorw("Failed to stop usage batch writer", "error", err)
		}
	}()

	for {
		msg, err := c.consumer.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Usage consumer stopping (context cancelled)")
				return nil
			}
			c.backoff.RecordFailure()
			c.log.Warnw("Failed to read usage event", "error", err, "retry_in", c.backoff.Backoff())
			if c.backoff.Wait(ctx) != nil {
				c.log.Info("Usage consumer stopping (context cancelled)")
				return nil
			}
			continue
		}
		c.backoff.RecordSuccess()

		// The current message gets its own deadline so shutdown never drops it half-written.
		processCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = c.handleUsageEvent(processCtx, msg)
		cancel()

		metrics.RecordKafkaMessage(msg.Topic, err)
		if err != nil {
			c.log.Errorw("Failed to handle usage event",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err,
			)
		}

		if ctx.Err() != nil {
			c.log.Info("Usage consumer stopping after processing current message")
			return nil
		}
	}
}

func (c *UsageConsumer) handleUsageEvent(ctx context.Context, msg kafka.Message) error {
	var rec usage.Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return errors.Wrap(err, "unmarshal usage event")
	}
	if rec.EventID == "" || rec.ModelID == "" {
		return errors.Newf("usage event missing identity (key=%s)", string(msg.Key))
	}

	if err := c.store.Store(ctx, &rec); err != nil {
		return errors.Wrap(err, "failed to store usage record")
	}

	c.log.Debugw("Usage event buffered for batch insert",
		"path", rec.Path(),
		"tokens", rec.TotalTokens,
		"cost_usd", rec.TotalCostUSD.String(),
	)
	return nil
}
