package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"switchboard/internal/metrics"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Producer publishes JSON events, one lazily created writer per topic.
// Messages are hash-balanced on their key so one provider's events stay
// ordered within a partition.
type Producer struct {
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	brokers []string
	async   bool
	log     *logger.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers []string
	Async   bool
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		brokers: cfg.Brokers,
		async:   cfg.Async,
		log:     logger.Component("kafka_producer"),
	}
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  p.async,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	if p.async {
		w.Completion = func(messages []kafka.Message, err error) {
			metrics.RecordKafkaMessage(topic, err)
			if err != nil {
				p.log.Errorw("Async publish failed", "topic", topic, "messages", len(messages), "error", err)
			}
		}
	}

	p.writers[topic] = w
	return w
}

// Publish encodes event as JSON and writes it under key. In async mode the
// write is only queued and failures are logged from the completion callback.
func (p *Producer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "encode event for %s", topic)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	err = p.writer(topic).WriteMessages(ctx, msg)
	if !p.async {
		metrics.RecordKafkaMessage(topic, err)
	}
	if err != nil {
		p.log.Errorw("Failed to publish", "topic", topic, "key", key, "error", err)
		return errors.Wrapf(err, "publish to %s", topic)
	}

	p.log.Debugw("Published", "topic", topic, "key", key)
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs errors.MultiError
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Errorw("Failed to close writer", "topic", topic, "error", err)
			errs.Add(errors.Wrapf(err, "close writer %s", topic))
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return errs.ToError()
}
