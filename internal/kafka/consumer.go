// Package kafka ingests score submissions published by game backends
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/advent-arcade/internal/config"
	"github.com/advent-arcade/internal/domain"
)

// ScoreHandler processes score submissions
type ScoreHandler interface {
	SubmitScoreBatch(ctx context.Context, batch domain.BatchScoreSubmission) (int, error)
}

// Consumer consumes score messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       ScoreHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan struct{}
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler ScoreHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan struct{}),
	}, nil
}

// Start begins consuming in the background and returns once the first
// session is set up or startCtx expires.
func (c *Consumer) Start(startCtx context.Context) error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ready := c.ready
		for {
			handler := &groupHandler{consumer: c, ready: ready}
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
			// later sessions have nobody waiting on them
			ready = make(chan struct{})
		}
	}()

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

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-startCtx.Done():
		return fmt.Errorf("waiting for consumer group session: %w", startCtx.Err())
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// DecodeSubmission parses and checks one message value
func DecodeSubmission(value []byte) (domain.ScoreSubmission, error) {
	var sub domain.ScoreSubmission
	if err := json.Unmarshal(value, &sub); err != nil {
		return sub, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	sub.GameName = strings.TrimSpace(sub.GameName)
	sub.Username = strings.TrimSpace(sub.Username)
	if sub.GameName == "" || sub.Username == "" {
		return sub, fmt.Errorf("%w: gameName and username are required", domain.ErrInvalidRequest)
	}
	if sub.Score < 0 {
		return sub, domain.ErrInvalidScore
	}
	return sub, nil
}

// batcher collects submissions until it is full or flushed
type batcher struct {
	handler ScoreHandler
	size    int
	logger  *slog.Logger
	pending []domain.ScoreSubmission
}

func newBatcher(handler ScoreHandler, size int, logger *slog.Logger) *batcher {
	if size <= 0 {
		size = 1
	}
	return &batcher{
		handler: handler,
		size:    size,
		logger:  logger,
		pending: make([]domain.ScoreSubmission, 0, size),
	}
}

// add queues a submission and reports whether the batch is full
func (b *batcher) add(sub domain.ScoreSubmission) bool {
	b.pending = append(b.pending, sub)
	return len(b.pending) >= b.size
}

func (b *batcher) flush() {
	if len(b.pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch := domain.BatchScoreSubmission{Scores: b.pending}
	accepted, err := b.handler.SubmitScoreBatch(ctx, batch)
	if err != nil {
		b.logger.Error("failed to process batch", "error", err, "batch_size", len(b.pending))
	} else {
		b.logger.Debug("processed batch", "batch_size", len(b.pending), "accepted", accepted)
	}

	b.pending = make([]domain.ScoreSubmission, 0, b.size)
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	consumer *Consumer
	ready    chan struct{}
	once     sync.Once
}

// Setup is called at the beginning of a new session
func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(func() { close(h.ready) })
	return nil
}

// Cleanup is called at the end of a session
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger
	b := newBatcher(h.consumer.handler, cfg.BatchSize, logger)

	timer := time.NewTimer(cfg.BatchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-session.Context().Done():
			b.flush()
			return nil

		case <-timer.C:
			b.flush()
			timer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				b.flush()
				return nil
			}

			sub, err := DecodeSubmission(message.Value)
			session.MarkMessage(message, "")
			if err != nil {
				logger.Warn("skipping invalid score message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			if b.add(sub) {
				b.flush()
				timer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
