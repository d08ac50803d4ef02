package book

import (
	"testing"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/custody"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

func restingOrder(id string, bm domain.BalanceManager, isBid bool, price, qty uint64) *order {
	return &order{id: id, bm: bm, isBid: isBid, price: price, quantity: qty}
}

func TestOrderBookBestPrices(t *testing.T) {
	ob := NewOrderBook()
	bm := custody.NewBalanceManager("0xa")
	ob.add(restingOrder("b1", bm, true, 100, 1))
	ob.add(restingOrder("b2", bm, true, 105, 1))
	ob.add(restingOrder("s1", bm, false, 110, 1))
	ob.add(restingOrder("s2", bm, false, 108, 1))

	if bid, ok := ob.BestBid(); !ok || bid != 105 {
		t.Fatalf("expected best bid 105, got %d", bid)
	}
	if ask, ok := ob.BestAsk(); !ok || ask != 108 {
		t.Fatalf("expected best ask 108, got %d", ask)
	}
	if ob.Depth(true) != 2 || ob.Depth(false) != 2 {
		t.Fatalf("unexpected depth")
	}
}

func TestOrderBookRemove(t *testing.T) {
	ob := NewOrderBook()
	bm := custody.NewBalanceManager("0xa")
	ob.add(restingOrder("o1", bm, true, 100, 1))
	if !ob.remove("o1") {
		t.Fatalf("expected remove to succeed")
	}
	if ob.remove("o1") {
		t.Fatalf("expected second remove to fail")
	}
	if _, ok := ob.BestBid(); ok {
		t.Fatalf("expected empty bid side")
	}
}

func TestMatchIsPriceTimePriority(t *testing.T) {
	ob := NewOrderBook()
	m1 := custody.NewBalanceManager("0xm1")
	m2 := custody.NewBalanceManager("0xm2")
	ob.add(restingOrder("late", m2, false, 100, 5))
	ob.add(restingOrder("early-better", m1, false, 99, 5))
	ob.add(restingOrder("same-price-second", m1, false, 100, 5))

	taker := restingOrder("t", custody.NewBalanceManager("0xt"), true, 100, 12)
	res := ob.match(taker, false, domain.SelfMatchingAllowed)
	if len(res.fills) != 3 {
		t.Fatalf("expected 3 fills, got %d", len(res.fills))
	}
	want := []string{"early-better", "late", "same-price-second"}
	for i, f := range res.fills {
		if f.maker.id != want[i] {
			t.Fatalf("fill %d: expected %s, got %s", i, want[i], f.maker.id)
		}
	}
	if res.fills[2].quantity != 2 {
		t.Fatalf("expected partial last fill of 2, got %d", res.fills[2].quantity)
	}
	if ob.Depth(false) != 1 {
		t.Fatalf("expected partially filled maker to remain")
	}
}

func TestWalkDoesNotMutate(t *testing.T) {
	ob := NewOrderBook()
	bm := custody.NewBalanceManager("0xm")
	ob.add(restingOrder("a1", bm, false, 2_000_000_000, 1_000))
	ob.add(restingOrder("a2", bm, false, 3_000_000_000, 1_000))

	probe := &order{isBid: true, quantity: 1_500}
	filled, quote, err := ob.walk(probe, true, domain.SelfMatchingAllowed)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if filled != 1_500 || quote != 3_500 {
		t.Fatalf("unexpected walk %d %d", filled, quote)
	}
	if o, _ := ob.get("a1"); o.filled != 0 {
		t.Fatalf("walk must not fill orders")
	}
}

func TestMatchCancelMakerRemovesSelfOrders(t *testing.T) {
	ob := NewOrderBook()
	self := custody.NewBalanceManager("0xself")
	other := custody.NewBalanceManager("0xother")
	ob.add(restingOrder("mine", self, false, 100, 5))
	ob.add(restingOrder("theirs", other, false, 101, 5))

	taker := restingOrder("t", self, true, 101, 5)
	res := ob.match(taker, false, domain.CancelMaker)
	if len(res.cancelled) != 1 || res.cancelled[0].id != "mine" {
		t.Fatalf("expected own order cancelled, got %+v", res.cancelled)
	}
	if len(res.fills) != 1 || res.fills[0].maker.id != "theirs" {
		t.Fatalf("expected fill against other maker")
	}
}
