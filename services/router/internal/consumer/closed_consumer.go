package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/kafka"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/book"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/IBM/sarama"
)

type Claimer interface {
	ClaimSettledFees(ctx context.Context, key domain.OrderKey) (domain.Coin, bool, error)
}

// ClosedOrderConsumer claims the held maker fee of every order the engine
// reports as closed.
type ClosedOrderConsumer struct {
	claimer Claimer
	logger  *slog.Logger
}

func NewClosedOrderConsumer(claimer Claimer, logger *slog.Logger) *ClosedOrderConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClosedOrderConsumer{claimer: claimer, logger: logger}
}

func (c *ClosedOrderConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return kafka.DLQ(fmt.Errorf("empty kafka message"), "empty")
	}
	var event book.OrderClosedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.DLQ(fmt.Errorf("decode orders.closed: %w", err), "decode")
	}
	if err := validate(event); err != nil {
		return kafka.DLQ(err, "validation")
	}

	key := domain.OrderKey{
		PoolID:           event.PoolID,
		BalanceManagerID: event.BalanceManagerID,
		OrderID:          event.OrderID,
	}
	coin, claimed, err := c.claimer.ClaimSettledFees(ctx, key)
	if err != nil {
		if kind := domain.KindOf(err); kind != domain.KindInternal {
			return kafka.DLQ(err, string(kind))
		}
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		c.logger.Debug("no fee to claim for closed order", "order_id", key.OrderID, "pool_id", key.PoolID, "event_id", event.EventID)
		return nil
	}
	c.logger.Info("closed order fee claimed",
		"pool_id", key.PoolID,
		"balance_manager_id", key.BalanceManagerID,
		"order_id", key.OrderID,
		"reason", event.Reason,
		"amount", coin.Value,
		"coin", string(coin.Type),
		"event_id", event.EventID,
	)
	return nil
}

func validate(e book.OrderClosedEvent) error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != book.EventTypeOrderClosed {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if strings.TrimSpace(e.PoolID) == "" {
		return fmt.Errorf("pool_id is required")
	}
	if strings.TrimSpace(e.BalanceManagerID) == "" {
		return fmt.Errorf("balance_manager_id is required")
	}
	if strings.TrimSpace(e.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	switch e.Reason {
	case book.CloseReasonFilled, book.CloseReasonCancelled:
	default:
		return fmt.Errorf("unknown close reason %q", e.Reason)
	}
	return nil
}
