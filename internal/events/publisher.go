package events

import (
	"context"
	"time"

	"switchboard/internal/adapters/kafka"
	"switchboard/internal/domain/usage"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// MessagePublisher sends one JSON-encoded message to a topic.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// CatalogRefreshedEvent announces a completed catalog reload.
type CatalogRefreshedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Models    int       `json:"models"`
	Providers int       `json:"providers"`
}

// Publisher publishes events to Kafka
type Publisher struct {
	producer   MessagePublisher
	usageTopic string
	log        *logger.Logger
}

var _ usage.Publisher = (*Publisher)(nil)

// NewPublisher creates a new event publisher. An empty usageTopic falls back
// to kafka.TopicUsageRecorded.
func NewPublisher(producer MessagePublisher, usageTopic string, log *logger.Logger) *Publisher {
	if usageTopic == "" {
		usageTopic = kafka.TopicUsageRecorded
	}
	if log == nil {
		log = logger.Component("events")
	}
	return &Publisher{
		producer:   producer,
		usageTopic: usageTopic,
		log:        log,
	}
}

// PublishUsage emits a usage record keyed by model path, so records for one
// model land on one partition.
func (p *Publisher) PublishUsage(ctx context.Context, rec *usage.Record) error {
	if rec == nil {
		return errors.New("nil usage record")
	}
	return p.publish(ctx, p.usageTopic, rec.Path(), sanitizeRecord(rec))
}

// PublishCatalogRefreshed emits a catalog reload notice.
func (p *Publisher) PublishCatalogRefreshed(ctx context.Context, event CatalogRefreshedEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, kafka.TopicCatalogRefreshed, event.Source, event)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	if err := p.producer.Publish(ctx, topic, key, event); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	p.log.Debugw("Event published", "topic", topic, "key", key)
	return nil
}
