package domain

import (
	"fmt"
	"math"
)

// MaxTimestamp marks an order that never expires.
const MaxTimestamp uint64 = math.MaxUint64

type OrderStatus uint8

const (
	StatusLive OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Resting reports whether an order with this status can still hold a maker remainder.
func (s OrderStatus) Resting() bool {
	return s == StatusLive || s == StatusPartiallyFilled
}

type OrderType uint8

const (
	NoRestriction OrderType = iota
	ImmediateOrCancel
	FillOrKill
	PostOnly
)

type SelfMatchingOption uint8

const (
	SelfMatchingAllowed SelfMatchingOption = iota
	CancelTaker
	CancelMaker
)

// OrderKey identifies one order for unsettled fee bookkeeping.
type OrderKey struct {
	PoolID           string
	BalanceManagerID string
	OrderID          string
}

func (k OrderKey) String() string {
	return k.PoolID + "/" + k.BalanceManagerID + "/" + k.OrderID
}

// OrderInfo is what the matching engine reports right after placement.
type OrderInfo struct {
	OrderID          string
	PoolID           string
	BalanceManagerID string
	ClientOrderID    uint64
	Price            uint64
	OriginalQuantity uint64
	ExecutedQuantity uint64
	Status           OrderStatus
	IsBid            bool
}

func (o OrderInfo) Key() OrderKey {
	return OrderKey{PoolID: o.PoolID, BalanceManagerID: o.BalanceManagerID, OrderID: o.OrderID}
}

// Order is the matching engine's view of a resting order.
type Order struct {
	OrderID          string
	BalanceManagerID string
	Price            uint64
	Quantity         uint64
	FilledQuantity   uint64
	IsBid            bool
	ExpireTimestamp  uint64
}

// BookParams are the pool's order size constraints.
type BookParams struct {
	TickSize uint64
	LotSize  uint64
	MinSize  uint64
}

// Pool describes a trading pair on the matching engine.
type Pool struct {
	ID    string
	Base  CoinType
	Quote CoinType
}

// InputCoin returns the coin an order on this pool consumes.
func (p Pool) InputCoin(isBid bool) CoinType {
	if isBid {
		return p.Quote
	}
	return p.Base
}

type LimitOrderRequest struct {
	PoolID          string
	ClientOrderID   uint64
	Price           uint64
	Quantity        uint64
	IsBid           bool
	OrderType       OrderType
	SelfMatching    SelfMatchingOption
	ExpireTimestamp uint64
	PayWithDeep     bool
}

type MarketOrderRequest struct {
	PoolID        string
	ClientOrderID uint64
	Quantity      uint64
	IsBid         bool
	SelfMatching  SelfMatchingOption
	PayWithDeep   bool
}

// MarketQuote is the engine's estimate for filling quantity at market.
type MarketQuote struct {
	// QuoteAmount is quote in for bids, quote out for asks.
	QuoteAmount  uint64
	DeepRequired uint64
}
