package router

import (
	"context"
	"strconv"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/kafka"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

const (
	DefaultEventsTopic = "fees.events"

	EventTypeOrderCharged = "fees.order_charged"
	EventTypeSettled      = "fees.settled"
	EventTypeClaimed      = "fees.claimed"
	EventTypeClaimBatch   = "fees.claim_batch"
)

type OrderChargedEvent struct {
	kafka.Envelope
	PoolID           string `json:"pool_id"`
	BalanceManagerID string `json:"balance_manager_id"`
	OrderID          string `json:"order_id"`
	FeeType          string `json:"fee_type"`
	Status           string `json:"status"`
	FeeCoin          string `json:"fee_coin"`
	TakerFee         uint64 `json:"taker_fee,string"`
	MakerFee         uint64 `json:"maker_fee,string"`
	Discount         uint64 `json:"discount,string"`
	DeepFromReserves uint64 `json:"deep_from_reserves,string"`
	CoverageFee      uint64 `json:"coverage_fee,string"`
}

// SettledEvent is published when a cancel settles a held maker fee.
type SettledEvent struct {
	kafka.Envelope
	PoolID           string `json:"pool_id"`
	BalanceManagerID string `json:"balance_manager_id"`
	OrderID          string `json:"order_id"`
	Coin             string `json:"coin"`
	Refund           uint64 `json:"refund,string"`
	Remaining        uint64 `json:"remaining,string"`
}

type ClaimedEvent struct {
	kafka.Envelope
	PoolID           string `json:"pool_id"`
	BalanceManagerID string `json:"balance_manager_id"`
	OrderID          string `json:"order_id"`
	Coin             string `json:"coin"`
	Amount           uint64 `json:"amount,string"`
}

type ClaimBatchEvent struct {
	kafka.Envelope
	Requested int               `json:"requested"`
	Claimed   int               `json:"claimed"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Totals    map[string]string `json:"totals"`
}

func (r *Router) publish(ctx context.Context, key string, payload any) {
	if r.producer == nil {
		return
	}
	if _, _, err := r.producer.PublishJSON(ctx, r.topic, key, payload); err != nil {
		r.logger.Error("fee event publish failed", "topic", r.topic, "key", key, "error", err)
	}
}

func (r *Router) envelope(eventType string, idParts ...string) (kafka.Envelope, bool) {
	env, err := kafka.NewEnvelope(eventType, 1, idParts...)
	if err != nil {
		r.logger.Error("fee event envelope failed", "event_type", eventType, "error", err)
		return kafka.Envelope{}, false
	}
	return env, true
}

func (r *Router) publishCharged(ctx context.Context, res OrderResult) {
	if r.producer == nil {
		return
	}
	info := res.Order
	env, ok := r.envelope(EventTypeOrderCharged, info.PoolID, info.OrderID)
	if !ok {
		return
	}
	r.publish(ctx, info.BalanceManagerID, OrderChargedEvent{
		Envelope:         env,
		PoolID:           info.PoolID,
		BalanceManagerID: info.BalanceManagerID,
		OrderID:          info.OrderID,
		FeeType:          string(res.FeeType),
		Status:           info.Status.String(),
		FeeCoin:          string(res.FeeCoin),
		TakerFee:         res.ProtocolFees.Taker,
		MakerFee:         res.ProtocolFees.Maker,
		Discount:         res.Discount,
		DeepFromReserves: res.DeepFromReserves,
		CoverageFee:      res.CoverageFee,
	})
}

func (r *Router) publishSettled(ctx context.Context, key domain.OrderKey, refund domain.Coin, remaining uint64) {
	if r.producer == nil {
		return
	}
	env, ok := r.envelope(EventTypeSettled, key.String())
	if !ok {
		return
	}
	r.publish(ctx, key.BalanceManagerID, SettledEvent{
		Envelope:         env,
		PoolID:           key.PoolID,
		BalanceManagerID: key.BalanceManagerID,
		OrderID:          key.OrderID,
		Coin:             string(refund.Type),
		Refund:           refund.Value,
		Remaining:        remaining,
	})
}

func (r *Router) publishClaimed(ctx context.Context, key domain.OrderKey, coin domain.Coin) {
	if r.producer == nil {
		return
	}
	env, ok := r.envelope(EventTypeClaimed, key.String())
	if !ok {
		return
	}
	r.publish(ctx, key.BalanceManagerID, ClaimedEvent{
		Envelope:         env,
		PoolID:           key.PoolID,
		BalanceManagerID: key.BalanceManagerID,
		OrderID:          key.OrderID,
		Coin:             string(coin.Type),
		Amount:           coin.Value,
	})
}

func (r *Router) publishBatch(ctx context.Context, summary ClaimSummary) {
	if r.producer == nil {
		return
	}
	env, ok := r.envelope(EventTypeClaimBatch)
	if !ok {
		return
	}
	totals := make(map[string]string, len(summary.Totals))
	for coin, amount := range summary.Totals {
		totals[string(coin)] = strconv.FormatUint(amount, 10)
	}
	r.publish(ctx, env.EventID, ClaimBatchEvent{
		Envelope:  env,
		Requested: summary.Requested,
		Claimed:   summary.Claimed,
		Skipped:   summary.Skipped,
		Failed:    summary.Failed,
		Totals:    totals,
	})
}
