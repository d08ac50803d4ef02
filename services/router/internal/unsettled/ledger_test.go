package unsettled

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

const sui domain.CoinType = "SUI"

func liveInfo(executed uint64) domain.OrderInfo {
	status := domain.StatusLive
	if executed > 0 {
		status = domain.StatusPartiallyFilled
	}
	return domain.OrderInfo{
		OrderID:          "order-1",
		PoolID:           "pool-1",
		BalanceManagerID: "bm-1",
		OriginalQuantity: 100,
		ExecutedQuantity: executed,
		Status:           status,
	}
}

func TestRecordAndFullRefund(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)
	info := liveInfo(30)

	if err := ledger.Record(ctx, info, domain.NewCoin(sui, 1000)); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Nothing else executed since recording: unfilled 70 of maker 70.
	s, ok, err := ledger.PlanSettlement(ctx, info.Key(), 100, 30)
	if err != nil || !ok {
		t.Fatalf("plan settlement: %v %v", ok, err)
	}
	if s.Refund.Value != 1000 || !s.Drained() {
		t.Fatalf("expected full refund, got %+v", s)
	}
	if err := ledger.ApplySettlement(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if has, _ := ledger.Has(ctx, info.Key()); has {
		t.Fatalf("drained entry must be removed")
	}
}

func TestPartialRefundKeepsRemainder(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)
	info := liveInfo(0)
	if err := ledger.Record(ctx, info, domain.NewCoin(sui, 1000)); err != nil {
		t.Fatalf("record: %v", err)
	}

	s, _, err := ledger.PlanSettlement(ctx, info.Key(), 100, 33)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	// floor(1000*67/100) = 670
	if s.Refund.Value != 670 || s.Remaining != 330 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if err := ledger.ApplySettlement(ctx, s); err != nil {
		t.Fatalf("apply: %v", err)
	}
	entry, ok, _ := ledger.Get(ctx, info.Key())
	if !ok || entry.Balance.Value != 330 {
		t.Fatalf("expected remainder 330, got %+v", entry)
	}
}

func TestRecordRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)
	info := liveInfo(0)
	if err := ledger.Record(ctx, info, domain.NewCoin(sui, 10)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ledger.Record(ctx, info, domain.NewCoin(sui, 10)); !errors.Is(err, domain.ErrUnsettledFeeExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestRecordPreconditions(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)

	if err := ledger.Record(ctx, liveInfo(0), domain.ZeroCoin(sui)); !errors.Is(err, domain.ErrZeroUnsettledFee) {
		t.Fatalf("expected zero fee error, got %v", err)
	}

	filled := liveInfo(100)
	filled.Status = domain.StatusFilled
	if err := ledger.Record(ctx, filled, domain.NewCoin(sui, 1)); !errors.Is(err, domain.ErrOrderNotLive) {
		t.Fatalf("expected not live, got %v", err)
	}

	odd := liveInfo(100)
	if err := ledger.Record(ctx, odd, domain.NewCoin(sui, 1)); !errors.Is(err, domain.ErrOrderFullyExecuted) {
		t.Fatalf("expected fully executed, got %v", err)
	}
}

func TestRefundAmountGuards(t *testing.T) {
	entry := Entry{Balance: domain.NewCoin(sui, 1000), OrderQuantity: 100, MakerQuantity: 70}

	if _, err := RefundAmount(entry, 100, 100); !errors.Is(err, domain.ErrFilledExceedsOrder) {
		t.Fatalf("expected filled exceeds, got %v", err)
	}
	if _, err := RefundAmount(entry, 100, 10); !errors.Is(err, domain.ErrUnfilledExceedsMaker) {
		t.Fatalf("expected unfilled exceeds maker, got %v", err)
	}
	if got, err := RefundAmount(entry, 100, 0); err != nil || got != 1000 {
		t.Fatalf("expected full refund when nothing filled, got %d %v", got, err)
	}
	if _, err := RefundAmount(Entry{Balance: domain.NewCoin(sui, 1)}, 100, 0); !errors.Is(err, domain.ErrZeroMakerQuantity) {
		t.Fatalf("expected zero maker error, got %v", err)
	}
}

func TestRefundMonotonic(t *testing.T) {
	entry := Entry{Balance: domain.NewCoin(sui, 999), OrderQuantity: 100, MakerQuantity: 100}
	var last uint64 = entry.Balance.Value + 1
	for filled := uint64(0); filled < 100; filled++ {
		got, err := RefundAmount(entry, 100, filled)
		if err != nil {
			t.Fatalf("filled %d: %v", filled, err)
		}
		if got > last || got > entry.Balance.Value {
			t.Fatalf("refund increased at filled %d: %d > %d", filled, got, last)
		}
		last = got
	}
}

func TestClaimRemovesEntry(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)
	info := liveInfo(0)
	if err := ledger.Record(ctx, info, domain.NewCoin(sui, 42)); err != nil {
		t.Fatalf("record: %v", err)
	}

	coin, ok, err := ledger.Claim(ctx, info.Key())
	if err != nil || !ok || coin.Value != 42 || coin.Type != sui {
		t.Fatalf("unexpected claim %+v %v %v", coin, ok, err)
	}
	coin, ok, err = ledger.Claim(ctx, info.Key())
	if err != nil || ok || coin.Value != 0 {
		t.Fatalf("second claim must be a no-op, got %+v %v %v", coin, ok, err)
	}
}

func TestPlanSettlementMissingEntry(t *testing.T) {
	ledger := New(NewMemoryStore(), nil)
	_, ok, err := ledger.PlanSettlement(context.Background(), domain.OrderKey{OrderID: "x"}, 10, 0)
	if err != nil || ok {
		t.Fatalf("expected no entry, got %v %v", ok, err)
	}
}

func TestListByBalanceManager(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)
	a := liveInfo(0)
	b := liveInfo(0)
	b.OrderID = "order-2"
	other := liveInfo(0)
	other.BalanceManagerID = "bm-2"
	for _, info := range []domain.OrderInfo{a, b, other} {
		if err := ledger.Record(ctx, info, domain.NewCoin(sui, 5)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	entries, err := ledger.ListByBalanceManager(ctx, "bm-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Key.OrderID != "order-1" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestPendingKeysOldestFirst(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"order-b", "order-a", "order-c"} {
		ledger.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		info := liveInfo(0)
		info.OrderID = id
		if err := ledger.Record(ctx, info, domain.NewCoin(sui, 5)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	keys, err := ledger.PendingKeys(ctx, 2)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0].OrderID != "order-b" || keys[1].OrderID != "order-a" {
		t.Fatalf("unexpected keys %+v", keys)
	}
}

func TestReadsAreRepeatable(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore(), nil)
	info := liveInfo(10)
	if err := ledger.Record(ctx, info, domain.NewCoin(sui, 500)); err != nil {
		t.Fatalf("record: %v", err)
	}
	missing := domain.OrderKey{PoolID: "pool-1", BalanceManagerID: "bm-1", OrderID: "order-2"}

	for _, key := range []domain.OrderKey{info.Key(), missing} {
		firstHas, err := ledger.Has(ctx, key)
		if err != nil {
			t.Fatalf("has %s: %v", key, err)
		}
		first, firstOK, err := ledger.Get(ctx, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		secondHas, _ := ledger.Has(ctx, key)
		second, secondOK, _ := ledger.Get(ctx, key)

		if firstHas != secondHas || firstOK != secondOK || firstHas != firstOK {
			t.Fatalf("%s: has %v/%v get %v/%v", key, firstHas, secondHas, firstOK, secondOK)
		}
		if first != second {
			t.Fatalf("%s: entry changed between reads: %+v vs %+v", key, first, second)
		}
	}

	entry, _, _ := ledger.Get(ctx, info.Key())
	if entry.Balance.Value != 500 || entry.MakerQuantity != 90 {
		t.Fatalf("reads changed the entry: %+v", entry)
	}
}
