package book

import (
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

type fill struct {
	maker    *order
	price    uint64
	quantity uint64
}

type matchResult struct {
	fills []fill
	// cancelled are resting orders of the taker's own balance manager removed
	// under CancelMaker.
	cancelled []*order
	// stopped is set when CancelTaker hit a self order.
	stopped bool
}

// match crosses taker against the opposite side in price-time order. Makers
// that fill completely or are cancelled leave the book; coin movement is left
// to the caller.
func (ob *OrderBook) match(taker *order, market bool, selfMatching domain.SelfMatchingOption) matchResult {
	opposite := ob.asks
	if !taker.isBid {
		opposite = ob.bids
	}

	var res matchResult
	for taker.remaining() > 0 {
		best := opposite.best()
		if best == nil || !crosses(taker, best.price, market) {
			break
		}
		front := best.orders.Front()
		if front == nil {
			break
		}
		maker := front.Value.(*order)
		if maker.remaining() == 0 {
			ob.remove(maker.id)
			continue
		}
		if maker.bm.ID() == taker.bm.ID() {
			switch selfMatching {
			case domain.CancelTaker:
				res.stopped = true
				return res
			case domain.CancelMaker:
				ob.remove(maker.id)
				res.cancelled = append(res.cancelled, maker)
				continue
			}
		}

		qty := min(taker.remaining(), maker.remaining())
		maker.filled += qty
		taker.filled += qty
		res.fills = append(res.fills, fill{maker: maker, price: best.price, quantity: qty})

		if maker.remaining() == 0 {
			ob.remove(maker.id)
		}
	}
	return res
}

// walk sums what taker could fill without mutating the book. It returns the
// fillable quantity and its quote value at maker prices.
func (ob *OrderBook) walk(taker *order, market bool, selfMatching domain.SelfMatchingOption) (uint64, uint64, error) {
	opposite := ob.asks
	if !taker.isBid {
		opposite = ob.bids
	}

	want := taker.remaining()
	var filled, quote uint64
	for _, level := range opposite.sorted() {
		if want == 0 || !crosses(taker, level.price, market) {
			break
		}
		for e := level.orders.Front(); e != nil && want > 0; e = e.Next() {
			maker := e.Value.(*order)
			if taker.bm != nil && maker.bm.ID() == taker.bm.ID() {
				if selfMatching == domain.CancelTaker {
					return filled, quote, nil
				}
				if selfMatching == domain.CancelMaker {
					continue
				}
			}
			qty := min(want, maker.remaining())
			value, err := fixedmath.Mul(qty, level.price)
			if err != nil {
				return 0, 0, err
			}
			if quote, err = fixedmath.Add(quote, value); err != nil {
				return 0, 0, err
			}
			filled += qty
			want -= qty
		}
	}
	return filled, quote, nil
}

// crossesBook reports whether a limit order at price would take liquidity.
func (ob *OrderBook) crossesBook(isBid bool, price uint64) bool {
	if isBid {
		ask, ok := ob.BestAsk()
		return ok && ask <= price
	}
	bid, ok := ob.BestBid()
	return ok && bid >= price
}

func crosses(taker *order, makerPrice uint64, market bool) bool {
	if market {
		return true
	}
	if taker.isBid {
		return makerPrice <= taker.price
	}
	return makerPrice >= taker.price
}
