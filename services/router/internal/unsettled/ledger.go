// Package unsettled holds maker fees charged at placement until the order is
// either cancelled by its owner or swept after it leaves the book.
package unsettled

import (
	"context"
	"log/slog"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

// Entry is the pending maker fee for one order.
type Entry struct {
	Key           domain.OrderKey
	Balance       domain.Coin
	OrderQuantity uint64
	// MakerQuantity is the unexecuted quantity when the fee was recorded.
	MakerQuantity uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store persists entries. Insert fails with domain.ErrUnsettledFeeExists when
// the key is already present.
type Store interface {
	Get(ctx context.Context, key domain.OrderKey) (Entry, bool, error)
	Insert(ctx context.Context, entry Entry) error
	Update(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key domain.OrderKey) error
	ListByBalanceManager(ctx context.Context, balanceManagerID string) ([]Entry, error)
	// Keys returns up to limit keys, oldest first. limit <= 0 means all.
	Keys(ctx context.Context, limit int) ([]domain.OrderKey, error)
}

type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// Record stores fee against the order described by info. The order must
// still rest on the book with a positive unexecuted quantity.
func (l *Ledger) Record(ctx context.Context, info domain.OrderInfo, fee domain.Coin) error {
	if fee.Value == 0 {
		return domain.ErrZeroUnsettledFee
	}
	if !info.Status.Resting() {
		return domain.Wrapf(domain.ErrOrderNotLive, "status %s", info.Status)
	}
	if info.ExecutedQuantity >= info.OriginalQuantity {
		return domain.Wrapf(domain.ErrOrderFullyExecuted, "executed %d of %d", info.ExecutedQuantity, info.OriginalQuantity)
	}
	now := l.now()
	entry := Entry{
		Key:           info.Key(),
		Balance:       fee,
		OrderQuantity: info.OriginalQuantity,
		MakerQuantity: info.OriginalQuantity - info.ExecutedQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.store.Insert(ctx, entry); err != nil {
		return err
	}
	l.logger.Debug("unsettled fee recorded",
		"order", entry.Key.String(),
		"coin", fee.Type,
		"amount", fee.Value,
		"maker_quantity", entry.MakerQuantity,
	)
	return nil
}

func (l *Ledger) Get(ctx context.Context, key domain.OrderKey) (Entry, bool, error) {
	return l.store.Get(ctx, key)
}

func (l *Ledger) Has(ctx context.Context, key domain.OrderKey) (bool, error) {
	_, ok, err := l.store.Get(ctx, key)
	return ok, err
}

// ListByBalanceManager returns every pending fee held for one balance manager.
func (l *Ledger) ListByBalanceManager(ctx context.Context, balanceManagerID string) ([]Entry, error) {
	return l.store.ListByBalanceManager(ctx, balanceManagerID)
}

// PendingKeys lists order keys with a pending fee, oldest first.
func (l *Ledger) PendingKeys(ctx context.Context, limit int) ([]domain.OrderKey, error) {
	return l.store.Keys(ctx, limit)
}

// Settlement is a computed but not yet applied user settlement.
type Settlement struct {
	Entry     Entry
	Refund    domain.Coin
	Remaining uint64
}

// Drained reports whether applying s removes the entry.
func (s Settlement) Drained() bool {
	return s.Remaining == 0
}

// RefundAmount returns the share of balance owed back for the unfilled part
// of the order, rounded down.
func RefundAmount(entry Entry, orderQuantity, filledQuantity uint64) (uint64, error) {
	if entry.MakerQuantity == 0 {
		return 0, domain.ErrZeroMakerQuantity
	}
	if filledQuantity >= orderQuantity {
		return 0, domain.Wrapf(domain.ErrFilledExceedsOrder, "filled %d of %d", filledQuantity, orderQuantity)
	}
	if filledQuantity == 0 {
		return entry.Balance.Value, nil
	}
	unfilled := orderQuantity - filledQuantity
	if unfilled > entry.MakerQuantity {
		return 0, domain.Wrapf(domain.ErrUnfilledExceedsMaker, "unfilled %d > maker %d", unfilled, entry.MakerQuantity)
	}
	return fixedmath.MulDiv(entry.Balance.Value, unfilled, entry.MakerQuantity)
}

// PlanSettlement computes the refund for an order that is about to be
// cancelled. It does not mutate the ledger. The bool is false when nothing
// is recorded for key.
func (l *Ledger) PlanSettlement(ctx context.Context, key domain.OrderKey, orderQuantity, filledQuantity uint64) (Settlement, bool, error) {
	entry, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return Settlement{}, ok, err
	}
	refund, err := RefundAmount(entry, orderQuantity, filledQuantity)
	if err != nil {
		return Settlement{}, true, err
	}
	return Settlement{
		Entry:     entry,
		Refund:    domain.NewCoin(entry.Balance.Type, refund),
		Remaining: entry.Balance.Value - refund,
	}, true, nil
}

// ApplySettlement commits a planned settlement. A drained entry is removed.
func (l *Ledger) ApplySettlement(ctx context.Context, s Settlement) error {
	if s.Drained() {
		return l.store.Delete(ctx, s.Entry.Key)
	}
	entry := s.Entry
	entry.Balance.Value = s.Remaining
	entry.UpdatedAt = l.now()
	return l.store.Update(ctx, entry)
}

// Claim removes the entry for an order that is no longer on the book and
// returns its whole balance. The bool is false when nothing was recorded.
func (l *Ledger) Claim(ctx context.Context, key domain.OrderKey) (domain.Coin, bool, error) {
	entry, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return domain.Coin{}, ok, err
	}
	if err := l.store.Delete(ctx, key); err != nil {
		return domain.Coin{}, true, err
	}
	return entry.Balance, true, nil
}
