package book

import (
	"context"
	"errors"
	"testing"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/custody"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

const (
	testPool = "SUI_USDC"
	price2   = 2_000_000_000
)

type testProducer struct {
	topics []string
	values []any
}

func (p *testProducer) PublishJSON(_ context.Context, topic, _ string, value any) (int32, int64, error) {
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
	return 0, 0, nil
}

func (p *testProducer) Close() error { return nil }

func newTestEngine(t *testing.T, producer *testProducer) *Engine {
	t.Helper()
	var e *Engine
	if producer != nil {
		e = NewEngine("DEEP", producer, "", nil, nil)
	} else {
		e = NewEngine("DEEP", nil, "", nil, nil)
	}
	spec := PoolSpec{
		ID: testPool, Base: "SUI", Quote: "USDC",
		TickSize: 1000, LotSize: 1000, MinSize: 1000,
		TakerFeeRate: 1_000_000, MakerFeeRate: 500_000,
		DeepPerBase: 2_000_000_000,
	}
	if err := e.AddPool(spec); err != nil {
		t.Fatalf("add pool: %v", err)
	}
	return e
}

func fund(t *testing.T, owner string, coins ...domain.Coin) *custody.BalanceManager {
	t.Helper()
	bm := custody.NewBalanceManager(owner)
	for _, c := range coins {
		if err := bm.Deposit(c); err != nil {
			t.Fatalf("fund: %v", err)
		}
	}
	return bm
}

func limit(price, qty uint64, isBid bool) domain.LimitOrderRequest {
	return domain.LimitOrderRequest{
		PoolID: testPool, Price: price, Quantity: qty, IsBid: isBid,
		ExpireTimestamp: domain.MaxTimestamp, PayWithDeep: true,
	}
}

func TestRestingAskChargesMakerFee(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 10_000), domain.NewCoin("DEEP", 20))

	info, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 10_000, false))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if info.Status != domain.StatusLive || info.ExecutedQuantity != 0 {
		t.Fatalf("unexpected info %+v", info)
	}
	if maker.Balance("SUI") != 0 || maker.Balance("DEEP") != 10 {
		t.Fatalf("expected escrowed base and maker fee of 10, got SUI %d DEEP %d", maker.Balance("SUI"), maker.Balance("DEEP"))
	}
	ids, err := e.OpenOrders(ctx, testPool, maker.ID())
	if err != nil || len(ids) != 1 || ids[0] != info.OrderID {
		t.Fatalf("expected order to rest, got %v %v", ids, err)
	}
}

func TestTakerBidFillsAtMakerPrice(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 10_000), domain.NewCoin("DEEP", 20))
	ask, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 10_000, false))
	if err != nil {
		t.Fatalf("place ask: %v", err)
	}

	taker := fund(t, "0xtaker", domain.NewCoin("USDC", 8_400), domain.NewCoin("DEEP", 8))
	info, err := e.PlaceLimitOrder(ctx, taker, limit(2_100_000_000, 4_000, true))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if info.Status != domain.StatusFilled || info.ExecutedQuantity != 4_000 {
		t.Fatalf("unexpected info %+v", info)
	}
	if taker.Balance("SUI") != 4_000 || taker.Balance("USDC") != 400 || taker.Balance("DEEP") != 0 {
		t.Fatalf("unexpected taker balances %v", taker.Snapshot())
	}
	if maker.Balance("USDC") != 8_000 {
		t.Fatalf("maker should receive 8000 USDC, got %d", maker.Balance("USDC"))
	}
	if got := e.CollectedFees("DEEP"); got != 18 {
		t.Fatalf("expected 18 DEEP in fees, got %d", got)
	}
	order, err := e.GetOrder(ctx, testPool, ask.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.FilledQuantity != 4_000 || order.Quantity != 10_000 {
		t.Fatalf("unexpected resting order %+v", order)
	}
}

func TestPartialFillRestsRemainder(t *testing.T) {
	producer := &testProducer{}
	e := newTestEngine(t, producer)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 10_000), domain.NewCoin("DEEP", 20))
	ask, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 10_000, false))
	if err != nil {
		t.Fatalf("place ask: %v", err)
	}

	taker := fund(t, "0xtaker", domain.NewCoin("USDC", 24_000), domain.NewCoin("DEEP", 24))
	info, err := e.PlaceLimitOrder(ctx, taker, limit(price2, 12_000, true))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if info.Status != domain.StatusPartiallyFilled || info.ExecutedQuantity != 10_000 {
		t.Fatalf("unexpected info %+v", info)
	}
	// taker 20 on 10000 executed, maker 2 on 2000 resting.
	if taker.Balance("DEEP") != 2 {
		t.Fatalf("expected 2 DEEP left, got %d", taker.Balance("DEEP"))
	}
	if taker.Balance("USDC") != 0 {
		t.Fatalf("resting bid keeps its escrow, got %d USDC free", taker.Balance("USDC"))
	}
	if _, err := e.GetOrder(ctx, testPool, ask.OrderID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("filled maker must leave the book, got %v", err)
	}
	if len(producer.values) != 1 {
		t.Fatalf("expected one closed event, got %d", len(producer.values))
	}
	ev := producer.values[0].(OrderClosedEvent)
	if ev.OrderID != ask.OrderID || ev.Reason != CloseReasonFilled || producer.topics[0] != DefaultClosedTopic {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestInputCoinFeeCarriesPenalty(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 1_000), domain.NewCoin("DEEP", 10))
	if _, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 1_000, false)); err != nil {
		t.Fatalf("place ask: %v", err)
	}

	taker := fund(t, "0xtaker", domain.NewCoin("USDC", 2_002))
	req := limit(price2, 1_000, true)
	req.PayWithDeep = false
	info, err := e.PlaceLimitOrder(ctx, taker, req)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if info.Status != domain.StatusFilled {
		t.Fatalf("expected filled, got %s", info.Status)
	}
	// 2000 * 0.1% * 1.25 = 2.5, truncated.
	if taker.Balance("USDC") != 0 || e.CollectedFees("USDC") != 2 {
		t.Fatalf("unexpected fee outcome: free %d collected %d", taker.Balance("USDC"), e.CollectedFees("USDC"))
	}
}

func TestFillOrKillWithoutLiquidityCancels(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 1_000), domain.NewCoin("DEEP", 10))
	if _, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 1_000, false)); err != nil {
		t.Fatalf("place ask: %v", err)
	}
	taker := fund(t, "0xtaker", domain.NewCoin("USDC", 4_000), domain.NewCoin("DEEP", 4))
	req := limit(price2, 2_000, true)
	req.OrderType = domain.FillOrKill
	info, err := e.PlaceLimitOrder(ctx, taker, req)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if info.Status != domain.StatusCancelled || info.ExecutedQuantity != 0 {
		t.Fatalf("unexpected info %+v", info)
	}
	if taker.Balance("USDC") != 4_000 || taker.Balance("DEEP") != 4 {
		t.Fatalf("FOK must not move funds, got %v", taker.Snapshot())
	}
}

func TestImmediateOrCancelReleasesRemainder(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 1_000), domain.NewCoin("DEEP", 10))
	if _, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 1_000, false)); err != nil {
		t.Fatalf("place ask: %v", err)
	}
	taker := fund(t, "0xtaker", domain.NewCoin("USDC", 4_000), domain.NewCoin("DEEP", 4))
	req := limit(price2, 2_000, true)
	req.OrderType = domain.ImmediateOrCancel
	info, err := e.PlaceLimitOrder(ctx, taker, req)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if info.Status != domain.StatusCancelled || info.ExecutedQuantity != 1_000 {
		t.Fatalf("unexpected info %+v", info)
	}
	if taker.Balance("USDC") != 2_000 || taker.Balance("SUI") != 1_000 {
		t.Fatalf("unexpected balances %v", taker.Snapshot())
	}
	if e.bookDepth(testPool) != 0 {
		t.Fatalf("IOC remainder must not rest")
	}
}

func TestPostOnlyCrossingRejected(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 1_000), domain.NewCoin("DEEP", 10))
	if _, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 1_000, false)); err != nil {
		t.Fatalf("place ask: %v", err)
	}
	taker := fund(t, "0xtaker", domain.NewCoin("USDC", 2_000), domain.NewCoin("DEEP", 2))
	req := limit(price2, 1_000, true)
	req.OrderType = domain.PostOnly
	if _, err := e.PlaceLimitOrder(ctx, taker, req); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("expected invalid order, got %v", err)
	}
	if taker.Balance("USDC") != 2_000 {
		t.Fatalf("rejected order must not move funds")
	}
}

func TestSelfMatchCancelTakerStops(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	bm := fund(t, "0xalice", domain.NewCoin("SUI", 1_000), domain.NewCoin("USDC", 2_000), domain.NewCoin("DEEP", 20))
	if _, err := e.PlaceLimitOrder(ctx, bm, limit(price2, 1_000, false)); err != nil {
		t.Fatalf("place ask: %v", err)
	}
	req := limit(price2, 1_000, true)
	req.SelfMatching = domain.CancelTaker
	info, err := e.PlaceLimitOrder(ctx, bm, req)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if info.Status != domain.StatusCancelled || info.ExecutedQuantity != 0 {
		t.Fatalf("unexpected info %+v", info)
	}
	if bm.Balance("USDC") != 2_000 {
		t.Fatalf("taker escrow must be released, got %d", bm.Balance("USDC"))
	}
	if e.bookDepth(testPool) != 1 {
		t.Fatalf("resting ask must survive")
	}
}

func TestInsufficientFundsRejected(t *testing.T) {
	e := newTestEngine(t, nil)
	bm := fund(t, "0xalice", domain.NewCoin("SUI", 1_000), domain.NewCoin("DEEP", 1))
	if _, err := e.PlaceLimitOrder(context.Background(), bm, limit(price2, 1_000, false)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if bm.Balance("SUI") != 1_000 {
		t.Fatalf("rejected order must not escrow")
	}
}

func TestOrderSizeValidation(t *testing.T) {
	e := newTestEngine(t, nil)
	bm := fund(t, "0xalice", domain.NewCoin("SUI", 10_000), domain.NewCoin("DEEP", 100))
	cases := []struct {
		name  string
		price uint64
		qty   uint64
		want  error
	}{
		{name: "below minimum", price: price2, qty: 0, want: domain.ErrOrderBelowMinimum},
		{name: "lot", price: price2, qty: 1_500, want: domain.ErrQuantityNotLotMultiple},
		{name: "tick", price: price2 + 1, qty: 1_000, want: domain.ErrPriceNotTickMultiple},
		{name: "zero price", price: 0, qty: 1_000, want: domain.ErrInvalidOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.PlaceLimitOrder(context.Background(), bm, limit(tc.price, tc.qty, false)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCancelOrderChecksOwnerAndRefunds(t *testing.T) {
	producer := &testProducer{}
	e := newTestEngine(t, producer)
	ctx := context.Background()
	maker := fund(t, "0xmaker", domain.NewCoin("SUI", 1_000), domain.NewCoin("DEEP", 10))
	info, err := e.PlaceLimitOrder(ctx, maker, limit(price2, 1_000, false))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	other := fund(t, "0xother")
	if err := e.CancelOrder(ctx, other, testPool, info.OrderID); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := e.CancelOrder(ctx, maker, testPool, info.OrderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if maker.Balance("SUI") != 1_000 {
		t.Fatalf("escrow must be refunded, got %d", maker.Balance("SUI"))
	}
	if err := e.CancelOrder(ctx, maker, testPool, info.OrderID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found on second cancel, got %v", err)
	}
	if len(producer.values) != 1 || producer.values[0].(OrderClosedEvent).Reason != CloseReasonCancelled {
		t.Fatalf("expected one cancelled event, got %+v", producer.values)
	}
}

func TestMarketQuoteAndMidPrice(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	if _, err := e.MidPrice(ctx, testPool); !errors.Is(err, domain.ErrReferencePoolPrice) {
		t.Fatalf("expected empty book error, got %v", err)
	}
	seller := fund(t, "0xs", domain.NewCoin("SUI", 2_000), domain.NewCoin("DEEP", 100))
	if _, err := e.PlaceLimitOrder(ctx, seller, limit(price2, 1_000, false)); err != nil {
		t.Fatalf("ask 1: %v", err)
	}
	if _, err := e.PlaceLimitOrder(ctx, seller, limit(3_000_000_000, 1_000, false)); err != nil {
		t.Fatalf("ask 2: %v", err)
	}
	buyer := fund(t, "0xb", domain.NewCoin("USDC", 1_000), domain.NewCoin("DEEP", 100))
	if _, err := e.PlaceLimitOrder(ctx, buyer, limit(1_000_000_000, 1_000, true)); err != nil {
		t.Fatalf("bid: %v", err)
	}

	quote, err := e.MarketQuote(ctx, testPool, 1_500, true)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 1000 @ 2 + 500 @ 3
	if quote.QuoteAmount != 3_500 || quote.DeepRequired != 3 {
		t.Fatalf("unexpected quote %+v", quote)
	}
	mid, err := e.MidPrice(ctx, testPool)
	if err != nil {
		t.Fatalf("mid: %v", err)
	}
	if mid != 1_500_000_000 {
		t.Fatalf("expected mid 1.5, got %d", mid)
	}
}

func TestMarketBidEscrowsWalkCost(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	seller := fund(t, "0xs", domain.NewCoin("SUI", 1_000), domain.NewCoin("DEEP", 10))
	if _, err := e.PlaceLimitOrder(ctx, seller, limit(price2, 1_000, false)); err != nil {
		t.Fatalf("ask: %v", err)
	}
	buyer := fund(t, "0xb", domain.NewCoin("USDC", 2_000), domain.NewCoin("DEEP", 4))
	info, err := e.PlaceMarketOrder(ctx, buyer, domain.MarketOrderRequest{PoolID: testPool, Quantity: 2_000, IsBid: true, PayWithDeep: true})
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if info.Status != domain.StatusCancelled || info.ExecutedQuantity != 1_000 {
		t.Fatalf("unexpected info %+v", info)
	}
	if buyer.Balance("SUI") != 1_000 || buyer.Balance("USDC") != 0 || buyer.Balance("DEEP") != 2 {
		t.Fatalf("unexpected balances %v", buyer.Snapshot())
	}
}

func TestWhitelistedPoolNeedsNoDeep(t *testing.T) {
	e := NewEngine("DEEP", nil, "", nil, nil)
	if err := e.AddPool(PoolSpec{ID: "DEEP_SUI", Base: "DEEP", Quote: "SUI", TickSize: 1, LotSize: 1, MinSize: 1, TakerFeeRate: 1_000_000, DeepPerBase: 1, Whitelisted: true}); err != nil {
		t.Fatalf("add pool: %v", err)
	}
	deep, err := e.DeepRequired(context.Background(), "DEEP_SUI", 1_000_000, 1)
	if err != nil || deep != 0 {
		t.Fatalf("expected zero deep, got %d %v", deep, err)
	}
	if ok, _ := e.IsWhitelisted(context.Background(), "DEEP_SUI"); !ok {
		t.Fatalf("expected whitelisted")
	}
	if _, err := e.Pool(context.Background(), "missing"); !errors.Is(err, domain.ErrPoolNotFound) {
		t.Fatalf("expected pool not found, got %v", err)
	}
}

func TestPoolSpecValidate(t *testing.T) {
	good := PoolSpec{ID: "p", Base: "A", Quote: "B", TickSize: 1, LotSize: 10, MinSize: 10, TakerFeeRate: 2, MakerFeeRate: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	bad := []PoolSpec{
		{Base: "A", Quote: "B", TickSize: 1, LotSize: 1, MinSize: 1},
		{ID: "p", Base: "A", Quote: "A", TickSize: 1, LotSize: 1, MinSize: 1},
		{ID: "p", Base: "A", Quote: "B", LotSize: 1, MinSize: 1},
		{ID: "p", Base: "A", Quote: "B", TickSize: 1, LotSize: 10, MinSize: 15},
		{ID: "p", Base: "A", Quote: "B", TickSize: 1, LotSize: 1, MinSize: 1, TakerFeeRate: 1, MakerFeeRate: 2},
	}
	for i, spec := range bad {
		if err := spec.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func (e *Engine) bookDepth(poolID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.markets[poolID]
	return m.book.Depth(true) + m.book.Depth(false)
}
