package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

// Publisher writes update requests and run events to Kafka
type Publisher struct {
	config   *config.KafkaConfig
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewPublisher creates a new synchronous Kafka publisher
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}

	return &Publisher{
		config:   cfg,
		producer: producer,
		logger:   logger,
	}, nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}

func (p *Publisher) send(topic, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("sending message to %s: %w", topic, err)
	}

	p.logger.Debug("message published",
		"topic", topic,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// PublishRunCompleted announces a committed reconciliation run
func (p *Publisher) PublishRunCompleted(_ context.Context, summary domain.RunSummary) error {
	event := RunEvent{
		EventID:   uuid.New().String(),
		Type:      EventTypeRunCompleted,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	}
	return p.send(p.config.EventTopic, strconv.FormatInt(summary.ChallengeID, 10), event)
}

// PublishUpdateRequest asks the consuming updater to run a reconciliation
func (p *Publisher) PublishUpdateRequest(_ context.Context, req UpdateRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	return p.send(p.config.RequestTopic, strconv.FormatInt(req.ChallengeID, 10), req)
}
