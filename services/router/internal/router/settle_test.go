package router

import (
	"context"
	"errors"
	"testing"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/custody"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/unsettled"
)

// flakyStore fails the ledger writes whose error is set.
type flakyStore struct {
	*unsettled.MemoryStore
	insertErr error
	updateErr error
	deleteErr error
}

func (s *flakyStore) Insert(ctx context.Context, entry unsettled.Entry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryStore.Insert(ctx, entry)
}

func (s *flakyStore) Update(ctx context.Context, entry unsettled.Entry) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.MemoryStore.Update(ctx, entry)
}

func (s *flakyStore) Delete(ctx context.Context, key domain.OrderKey) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, key)
}

// refusingWallet accepts withdrawals but rejects every deposit.
type refusingWallet struct {
	domain.Wallet
	err error
}

func (w refusingWallet) Deposit(domain.Coin) error { return w.err }

func withFlakyLedger(t *testing.T, h *harness) (*flakyStore, *Router) {
	t.Helper()
	store := &flakyStore{MemoryStore: unsettled.NewMemoryStore()}
	h.ledger = unsettled.New(store, nil)
	return store, h.newRouter(t, h.engine, Options{ReferenceCoin: "USDC"})
}

func TestUnrecordedMakerFeeWithdrawsOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store, r := withFlakyLedger(t, h)
	dbDown := errors.New("db down")
	store.insertErr = dbDown

	aliceBM := custody.NewBalanceManager(alice)
	wallet := custody.NewWallet(alice, domain.NewCoin("SUI", 20_000))
	res, err := r.CreateLimitOrder(ctx, alice, aliceBM, wallet, inputAsk(price2, 10_000))
	if !errors.Is(err, dbDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if res.Order.Status != domain.StatusCancelled || res.ProtocolFees.Maker != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if ids, _ := h.engine.OpenOrders(ctx, testPool, aliceBM.ID()); len(ids) != 0 {
		t.Fatalf("order rests without a held maker fee: %v", ids)
	}
	if has, _ := h.ledger.Has(ctx, res.Order.Key()); has {
		t.Fatalf("unexpected ledger entry")
	}
	// 20_000 - 20 escrow - 10_012 input + 20 unheld fee refunded
	if got := wallet.Balance("SUI"); got != 9_988 {
		t.Fatalf("expected wallet SUI 9988, got %d", got)
	}
	if got := h.vault.ProtocolFees("SUI"); got != 0 {
		t.Fatalf("expected no protocol fee, got %d", got)
	}
}

func TestUnrecordedMakerFeeKeepsFilledPart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store, r := withFlakyLedger(t, h)
	store.insertErr = errors.New("db down")
	bobBM := fundManager(t, bob, domain.NewCoin("USDC", 1_000_000))
	makerBid(t, h, bobBM, price2, 3_000)

	aliceBM := custody.NewBalanceManager(alice)
	wallet := custody.NewWallet(alice, domain.NewCoin("SUI", 20_000))
	res, err := r.CreateLimitOrder(ctx, alice, aliceBM, wallet, inputAsk(price2, 10_000))
	if err == nil {
		t.Fatalf("expected store error")
	}
	if res.Order.Status != domain.StatusCancelled || res.Order.ExecutedQuantity != 3_000 || res.ProtocolFees.Taker != 6 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.vault.ProtocolFees("SUI"); got != 6 {
		t.Fatalf("taker fee should still be collected, got %d", got)
	}
	// 20_000 - 20 escrow - 10_012 input + 14 left after the taker fee
	if got := wallet.Balance("SUI"); got != 9_982 {
		t.Fatalf("expected wallet SUI 9982, got %d", got)
	}
}

func TestCancelRejectedAfterVersionRevoked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.vault.EnableVersion(2); err != nil {
		t.Fatalf("enable: %v", err)
	}
	r := h.newRouter(t, h.engine, Options{ReferenceCoin: "USDC", Version: 2})

	aliceBM := custody.NewBalanceManager(alice)
	wallet := custody.NewWallet(alice, domain.NewCoin("SUI", 20_000))
	res, err := r.CreateLimitOrder(ctx, alice, aliceBM, wallet, inputAsk(price2, 10_000))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := h.vault.PermanentlyDisableVersion(2); err != nil {
		t.Fatalf("disable: %v", err)
	}

	before := wallet.Balance("SUI")
	_, err = r.CancelOrderAndSettleFees(ctx, alice, aliceBM, wallet, testPool, res.Order.OrderID)
	if !errors.Is(err, domain.ErrVersionDisabled) {
		t.Fatalf("expected ErrVersionDisabled, got %v", err)
	}
	if ids, _ := h.engine.OpenOrders(ctx, testPool, aliceBM.ID()); len(ids) != 1 {
		t.Fatalf("order must stay on the book, open %v", ids)
	}
	entry, ok, _ := h.ledger.Get(ctx, res.Order.Key())
	if !ok || entry.Balance.Value != 10 {
		t.Fatalf("entry changed: %+v ok=%v", entry, ok)
	}
	if wallet.Balance("SUI") != before {
		t.Fatalf("refund paid by a revoked version")
	}

	if _, err := h.router.CancelOrderAndSettleFees(ctx, alice, aliceBM, wallet, testPool, res.Order.OrderID); err != nil {
		t.Fatalf("current version cancel: %v", err)
	}
}

func TestCancelRefundDepositFailureKeepsEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bobBM := fundManager(t, bob, domain.NewCoin("USDC", 1_000_000))
	makerBid(t, h, bobBM, price2, 3_000)

	aliceBM := custody.NewBalanceManager(alice)
	wallet := custody.NewWallet(alice, domain.NewCoin("SUI", 20_000))
	res, err := h.router.CreateLimitOrder(ctx, alice, aliceBM, wallet, inputAsk(price2, 10_000))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	refused := errors.New("wallet frozen")
	before := wallet.Balance("SUI")
	_, err = h.router.CancelOrderAndSettleFees(ctx, alice, aliceBM, refusingWallet{Wallet: wallet, err: refused}, testPool, res.Order.OrderID)
	if !errors.Is(err, refused) {
		t.Fatalf("expected deposit error, got %v", err)
	}
	entry, ok, _ := h.ledger.Get(ctx, res.Order.Key())
	if !ok || entry.Balance.Value != 7 {
		t.Fatalf("entry must keep the unpaid refund: %+v ok=%v", entry, ok)
	}
	if wallet.Balance("SUI") != before || h.vault.ProtocolFees("SUI") != 6 {
		t.Fatalf("funds moved: wallet %d vault %d", wallet.Balance("SUI"), h.vault.ProtocolFees("SUI"))
	}
}

func TestCancelApplyFailureTakesRefundBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store, r := withFlakyLedger(t, h)
	aliceBM := custody.NewBalanceManager(alice)
	wallet := custody.NewWallet(alice, domain.NewCoin("SUI", 20_000))
	res, err := r.CreateLimitOrder(ctx, alice, aliceBM, wallet, inputAsk(price2, 10_000))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	dbDown := errors.New("db down")
	store.deleteErr = dbDown
	before := wallet.Balance("SUI")
	_, err = r.CancelOrderAndSettleFees(ctx, alice, aliceBM, wallet, testPool, res.Order.OrderID)
	if !errors.Is(err, dbDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if wallet.Balance("SUI") != before {
		t.Fatalf("refund kept although the entry was not settled: %d -> %d", before, wallet.Balance("SUI"))
	}
	entry, ok, _ := h.ledger.Get(ctx, res.Order.Key())
	if !ok || entry.Balance.Value != 10 {
		t.Fatalf("entry changed: %+v ok=%v", entry, ok)
	}
}

func TestClaimEventsPerCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aliceBM := custody.NewBalanceManager(alice)
	wallet := custody.NewWallet(alice, domain.NewCoin("SUI", 50_000))

	var keys []domain.OrderKey
	for i := 0; i < 3; i++ {
		res, err := h.router.CreateLimitOrder(ctx, alice, aliceBM, wallet, inputAsk(price2, 10_000))
		if err != nil {
			t.Fatalf("place %d: %v", i, err)
		}
		keys = append(keys, res.Order.Key())
	}
	bobBM := fundManager(t, bob, domain.NewCoin("USDC", 1_000_000))
	makerBid(t, h, bobBM, price2, 30_000)

	published := len(h.producer.values)
	if _, ok, err := h.router.ClaimSettledFees(ctx, keys[0]); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if got := h.producer.values[published:]; len(got) != 1 {
		t.Fatalf("single claim published %d events", len(got))
	} else if ev, ok := got[0].(ClaimedEvent); !ok || ev.EventType != EventTypeClaimed {
		t.Fatalf("unexpected claim event %+v", got[0])
	}

	published = len(h.producer.values)
	summary, err := h.router.BatchClaim(ctx, keys[1:])
	if err != nil || summary.Claimed != 2 {
		t.Fatalf("batch claim: %+v err=%v", summary, err)
	}
	got := h.producer.values[published:]
	if len(got) != 1 {
		t.Fatalf("batch claim published %d events, want one summary", len(got))
	}
	if ev, ok := got[0].(ClaimBatchEvent); !ok || ev.EventType != EventTypeClaimBatch || ev.Totals["SUI"] != "20" {
		t.Fatalf("unexpected batch event %+v", got[0])
	}
}
