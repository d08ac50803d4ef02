package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group        sarama.ConsumerGroup
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	maxAttempts  int
	retryWindow  time.Duration
	retryBackoff time.Duration
}

type ConsumerOption func(*Consumer)

// WithDeadLetter routes messages that fail permanently to topic.
func WithDeadLetter(p Publisher, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlqPublisher = p
		c.dlqTopic = topic
	}
}

// WithRetry retries a failing message up to attempts times, waiting backoff
// between tries, before giving up on it.
func WithRetry(attempts int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

func NewConsumer(brokers []string, groupID string, logger *slog.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	group, err := sarama.NewConsumerGroup(brokers, groupID, consumerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	c := &Consumer{
		group:        group,
		logger:       logger,
		maxAttempts:  3,
		retryWindow:  10 * time.Minute,
		retryBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func consumerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	cfg.Consumer.Return.Errors = true
	return cfg
}

func (c *Consumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler required")
	}

	cgHandler := &consumerGroupHandler{
		handler:      handler,
		logger:       c.logger,
		dlqPublisher: c.dlqPublisher,
		dlqTopic:     c.dlqTopic,
		retryTracker: newRetryTracker(c.maxAttempts, c.retryWindow),
		backoff:      c.retryBackoff,
	}

	for {
		if err := c.group.Consume(ctx, topics, cgHandler); err != nil {
			c.logger.Error("kafka consume error", "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(2 * time.Second)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler      MessageHandler
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	retryTracker *retryTracker
	backoff      time.Duration
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for msg := range claim.Messages() {
		if !h.process(ctx, msg) {
			return nil
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// process returns false when the session ended before msg was resolved.
func (h *consumerGroupHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	key := messageKey(msg)
	for {
		err := h.handler.HandleMessage(ctx, msg)
		if err == nil {
			h.retryTracker.clear(key)
			return true
		}

		attempts := h.retryTracker.record(key, time.Now())
		var dlqErr *DLQError
		permanent := errors.As(err, &dlqErr)
		if permanent || h.retryTracker.exhausted(attempts) {
			if dlqErr == nil {
				dlqErr = &DLQError{Err: err, Reason: "retries_exhausted"}
			}
			h.deadLetter(ctx, msg, dlqErr, attempts)
			h.retryTracker.clear(key)
			return true
		}

		h.logger.Warn("kafka message handler error, retrying",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
			"attempt", attempts, "error", err)
		if h.backoff > 0 {
			timer := time.NewTimer(h.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return false
		}
	}
}

func (h *consumerGroupHandler) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, err *DLQError, attempts int) {
	h.logger.Error("kafka message dropped",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
		"attempts", attempts, "reason", err.Reason, "error", err)
	if h.dlqPublisher == nil || h.dlqTopic == "" {
		return
	}
	payload := consumedDeadLetter(msg, err, attempts)
	if _, _, pubErr := h.dlqPublisher.PublishJSON(ctx, h.dlqTopic, payload.Key, payload); pubErr != nil {
		h.logger.Error("dlq publish failed", "topic", h.dlqTopic, "error", pubErr)
	}
}

func messageKey(msg *sarama.ConsumerMessage) string {
	return msg.Topic + "/" + strconv.Itoa(int(msg.Partition)) + "/" + strconv.FormatInt(msg.Offset, 10)
}

// retryTracker counts failed attempts per message. Counts older than window
// are forgotten.
type retryTracker struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	attempts    map[string]retryState
}

type retryState struct {
	count int
	first time.Time
}

func newRetryTracker(maxAttempts int, window time.Duration) *retryTracker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &retryTracker{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string]retryState),
	}
}

func (t *retryTracker) record(key string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.attempts[key]
	if !ok || (t.window > 0 && now.Sub(state.first) > t.window) {
		state = retryState{first: now}
	}
	state.count++
	t.attempts[key] = state
	return state.count
}

func (t *retryTracker) exhausted(attempts int) bool {
	return attempts >= t.maxAttempts
}

func (t *retryTracker) clear(key string) {
	t.mu.Lock()
	delete(t.attempts, key)
	t.mu.Unlock()
}
