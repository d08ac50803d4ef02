package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/custody"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

// CancelOrderAndSettleFees cancels one of the caller's orders and returns the
// unfilled share of its held maker fee to the caller's wallet. Orders placed
// without a maker fee return a zero coin.
func (r *Router) CancelOrderAndSettleFees(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, poolID, orderID string) (domain.Coin, error) {
	if err := custody.CheckOwner(bm, caller); err != nil {
		return domain.Coin{}, err
	}
	if wallet == nil || wallet.Owner() != caller {
		return domain.Coin{}, domain.Wrapf(domain.ErrNotOwner, "wallet does not belong to caller")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelLocked(ctx, bm, wallet, poolID, orderID)
}

// CancelOrdersAndSettleFees cancels several orders in one pool. Refunds are
// returned in the order of orderIDs. It stops at the first failure; orders
// before it stay cancelled.
func (r *Router) CancelOrdersAndSettleFees(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, poolID string, orderIDs []string) ([]domain.Coin, error) {
	if err := custody.CheckOwner(bm, caller); err != nil {
		return nil, err
	}
	if wallet == nil || wallet.Owner() != caller {
		return nil, domain.Wrapf(domain.ErrNotOwner, "wallet does not belong to caller")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	refunds := make([]domain.Coin, 0, len(orderIDs))
	for _, id := range orderIDs {
		refund, err := r.cancelLocked(ctx, bm, wallet, poolID, id)
		if err != nil {
			return refunds, fmt.Errorf("cancel %s: %w", id, err)
		}
		refunds = append(refunds, refund)
	}
	return refunds, nil
}

// CancelAllOrdersAndSettleFees cancels every open order bm has in poolID.
func (r *Router) CancelAllOrdersAndSettleFees(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, poolID string) ([]domain.Coin, error) {
	if err := custody.CheckOwner(bm, caller); err != nil {
		return nil, err
	}
	ids, err := r.engine.OpenOrders(ctx, poolID, bm.ID())
	if err != nil {
		return nil, err
	}
	return r.CancelOrdersAndSettleFees(ctx, caller, bm, wallet, poolID, ids)
}

func (r *Router) cancelLocked(ctx context.Context, bm domain.BalanceManager, wallet domain.Wallet, poolID, orderID string) (domain.Coin, error) {
	if err := r.vault.CheckVersion(); err != nil {
		return domain.Coin{}, err
	}
	order, err := r.engine.GetOrder(ctx, poolID, orderID)
	if err != nil {
		return domain.Coin{}, err
	}
	if order.BalanceManagerID != bm.ID() {
		return domain.Coin{}, domain.Wrapf(domain.ErrNotOwner, "order %s", orderID)
	}
	key := domain.OrderKey{PoolID: poolID, BalanceManagerID: bm.ID(), OrderID: orderID}
	settlement, recorded, err := r.ledger.PlanSettlement(ctx, key, order.Quantity, order.FilledQuantity)
	if err != nil {
		return domain.Coin{}, err
	}
	if err := r.engine.CancelOrder(ctx, bm, poolID, orderID); err != nil {
		return domain.Coin{}, err
	}
	if !recorded {
		r.metrics.settlement("none")
		return domain.Coin{}, nil
	}

	// The order is gone from the book. The refund is paid before the entry
	// shrinks, and taken back if the entry cannot be updated, so the entry
	// always covers what was not refunded.
	if settlement.Refund.Value > 0 {
		if err := wallet.Deposit(settlement.Refund); err != nil {
			r.logger.Error("settlement refund failed", "order", key.String(), "amount", settlement.Refund.Value, "error", err)
			r.metrics.settlement("error")
			return domain.Coin{}, fmt.Errorf("refund %s: %w", key, err)
		}
	}
	if err := r.ledger.ApplySettlement(ctx, settlement); err != nil {
		r.logger.Error("settlement apply failed", "order", key.String(), "error", err)
		if settlement.Refund.Value > 0 {
			if _, takeErr := wallet.Withdraw(settlement.Refund.Type, settlement.Refund.Value); takeErr != nil {
				r.logger.Error("refund take back failed", "order", key.String(), "error", takeErr)
			}
		}
		r.metrics.settlement("error")
		return domain.Coin{}, fmt.Errorf("apply settlement for %s: %w", key, err)
	}

	result := "refunded"
	if settlement.Refund.Value == 0 {
		result = "kept"
	}
	r.metrics.settlement(result)
	r.metrics.feeCollected("maker_refund", string(settlement.Refund.Type), settlement.Refund.Value)
	r.publishSettled(ctx, key, settlement.Refund, settlement.Remaining)
	r.logger.Info("unsettled fee settled",
		"pool_id", poolID,
		"balance_manager_id", key.BalanceManagerID,
		"order_id", orderID,
		"refund", settlement.Refund.Value,
		"remaining", settlement.Remaining,
	)
	return settlement.Refund, nil
}

// ClaimSettledFees moves the whole held fee of an order that has left the
// book into the protocol fee bucket. Anyone may call it. The bool is false
// when the order is still open or nothing is held for it.
func (r *Router) ClaimSettledFees(ctx context.Context, key domain.OrderKey) (domain.Coin, bool, error) {
	r.mu.Lock()
	coin, ok, err := r.claimLocked(ctx, key)
	r.mu.Unlock()
	if ok && err == nil {
		r.publishClaimed(ctx, key, coin)
	}
	return coin, ok, err
}

func (r *Router) claimLocked(ctx context.Context, key domain.OrderKey) (domain.Coin, bool, error) {
	open, err := r.engine.OpenOrders(ctx, key.PoolID, key.BalanceManagerID)
	if err != nil {
		return domain.Coin{}, false, err
	}
	for _, id := range open {
		if id == key.OrderID {
			return domain.Coin{}, false, nil
		}
	}
	if err := r.vault.CheckVersion(); err != nil {
		return domain.Coin{}, false, err
	}
	entry, ok, err := r.ledger.Get(ctx, key)
	if err != nil || !ok {
		return domain.Coin{}, false, err
	}
	if err := r.vault.AddProtocolFee(entry.Balance); err != nil {
		return domain.Coin{}, false, err
	}
	if _, _, err := r.ledger.Claim(ctx, key); err != nil {
		if _, undoErr := r.vault.WithdrawProtocolFee(entry.Balance.Type, entry.Balance.Value); undoErr != nil {
			r.logger.Error("claim undo failed", "order", key.String(), "error", undoErr)
		}
		return domain.Coin{}, false, fmt.Errorf("claim %s: %w", key, err)
	}

	r.metrics.settlement("claimed")
	r.metrics.feeCollected("maker_claimed", string(entry.Balance.Type), entry.Balance.Value)
	r.logger.Info("unsettled fee claimed",
		"pool_id", key.PoolID,
		"balance_manager_id", key.BalanceManagerID,
		"order_id", key.OrderID,
		"amount", entry.Balance.Value,
	)
	return entry.Balance, true, nil
}

// ClaimSummary totals one batch claim.
type ClaimSummary struct {
	Requested int                        `json:"requested"`
	Claimed   int                        `json:"claimed"`
	Skipped   int                        `json:"skipped"`
	Failed    int                        `json:"failed"`
	Totals    map[domain.CoinType]uint64 `json:"totals"`
}

// BatchClaim claims every key it can. A failing key does not stop the batch;
// failures are joined into the returned error. One summary event is published
// for the whole batch instead of one per order.
func (r *Router) BatchClaim(ctx context.Context, keys []domain.OrderKey) (ClaimSummary, error) {
	summary := ClaimSummary{Requested: len(keys), Totals: make(map[domain.CoinType]uint64)}
	var errs []error

	r.mu.Lock()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		coin, ok, err := r.claimLocked(ctx, key)
		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		case !ok:
			summary.Skipped++
		default:
			summary.Claimed++
			summary.Totals[coin.Type] += coin.Value
		}
	}
	r.mu.Unlock()

	r.metrics.claimed(summary.Claimed)
	if summary.Claimed > 0 || summary.Failed > 0 {
		r.publishBatch(ctx, summary)
	}
	return summary, errors.Join(errs...)
}
