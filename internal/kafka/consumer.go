package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

// UpdateTrigger runs a gated reconciliation
type UpdateTrigger interface {
	TriggerUpdate(ctx context.Context, challengeID int64) (*domain.RunSummary, error)
}

// Consumer consumes update requests from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	trigger       UpdateTrigger
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, trigger UpdateTrigger, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		trigger:       trigger,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming update requests
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.RequestTopic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.RequestTopic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles requests one at a time; runs are never concurrent
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.handle(session.Context(), message.Value, message.Offset, message.Partition)
			// requests are not redelivered; the run gate already throttles retries
			session.MarkMessage(message, "")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte, offset int64, partition int32) {
	var req UpdateRequest
	if err := json.Unmarshal(value, &req); err != nil {
		c.logger.Warn("failed to unmarshal update request",
			"error", err,
			"offset", offset,
			"partition", partition,
		)
		return
	}

	summary, err := c.trigger.TriggerUpdate(ctx, req.ChallengeID)
	switch {
	case errors.Is(err, domain.ErrRunNotAllowed):
		c.logger.Info("update request rejected by gate", "requested_by", req.RequestedBy, "error", err)
	case err != nil:
		c.logger.Error("update request failed", "requested_by", req.RequestedBy, "error", err)
	default:
		c.logger.Info("update request completed",
			"requested_by", req.RequestedBy,
			"summary", summary.String(),
		)
	}
}
