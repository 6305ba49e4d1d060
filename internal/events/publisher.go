package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/prompt-general/answerhub/internal/config"
	"github.com/prompt-general/answerhub/pkg/models"
)

// Publisher emits query records and job lifecycle events for offline
// analysis. Publishing is fire-and-forget from the caller's perspective;
// the answering path must never block on it.
type Publisher interface {
	PublishQuery(ctx context.Context, record models.QueryRecord) error
	PublishJob(ctx context.Context, event models.JobEvent) error
	Ping(ctx context.Context) error
	Close() error
}

// kafkaPublisher implements Publisher on a shared kafka writer
type kafkaPublisher struct {
	writer     *kafka.Writer
	brokers    []string
	queryTopic string
	jobTopic   string
	timeout    time.Duration

	mu     sync.Mutex
	closed bool
}

// NewKafkaPublisher creates a Kafka-backed publisher
func NewKafkaPublisher(cfg config.KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrInvalidBrokers
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireAll,
	}

	return &kafkaPublisher{
		writer:     writer,
		brokers:    cfg.Brokers,
		queryTopic: cfg.QueryTopic,
		jobTopic:   cfg.JobTopic,
		timeout:    cfg.Timeout,
	}, nil
}

// PublishQuery emits one answered-question record
func (p *kafkaPublisher) PublishQuery(ctx context.Context, record models.QueryRecord) error {
	return p.publish(ctx, p.queryTopic, record.ID, record, []kafka.Header{
		{Key: "source", Value: []byte(string(record.Source))},
		{Key: "collection", Value: []byte(record.Collection)},
	})
}

// PublishJob emits one embedding-job state transition
func (p *kafkaPublisher) PublishJob(ctx context.Context, event models.JobEvent) error {
	return p.publish(ctx, p.jobTopic, event.JobID, event, []kafka.Header{
		{Key: "status", Value: []byte(string(event.Status))},
		{Key: "collection", Value: []byte(event.Collection)},
	})
}

func (p *kafkaPublisher) publish(ctx context.Context, topic, key string, payload interface{}, headers []kafka.Header) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	p.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
		Time:    time.Now(),
	})
}

// Ping verifies broker connectivity
func (p *kafkaPublisher) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka: %w", err)
	}
	return conn.Close()
}

// Close closes the underlying writer
func (p *kafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// noopPublisher drops all events; used when Kafka is disabled
type noopPublisher struct{}

// NewNoop returns a publisher that discards everything
func NewNoop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) PublishQuery(context.Context, models.QueryRecord) error { return nil }
func (noopPublisher) PublishJob(context.Context, models.JobEvent) error      { return nil }
func (noopPublisher) Ping(context.Context) error                             { return nil }
func (noopPublisher) Close() error                                           { return nil }
