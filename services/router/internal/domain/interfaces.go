package domain

import (
	"context"
	"time"
)

// MatchingEngine is the order book the router sits in front of.
type MatchingEngine interface {
	Pool(ctx context.Context, poolID string) (Pool, error)
	IsWhitelisted(ctx context.Context, poolID string) (bool, error)
	BookParams(ctx context.Context, poolID string) (BookParams, error)
	// TradeFeeRate is the taker fee rate in billionths.
	TradeFeeRate(ctx context.Context, poolID string) (uint64, error)
	DeepRequired(ctx context.Context, poolID string, quantity, price uint64) (uint64, error)
	MarketQuote(ctx context.Context, poolID string, quantity uint64, isBid bool) (MarketQuote, error)
	// MidPrice is quote per base in billionths of base units.
	MidPrice(ctx context.Context, poolID string) (uint64, error)
	PlaceLimitOrder(ctx context.Context, bm BalanceManager, req LimitOrderRequest) (OrderInfo, error)
	PlaceMarketOrder(ctx context.Context, bm BalanceManager, req MarketOrderRequest) (OrderInfo, error)
	CancelOrder(ctx context.Context, bm BalanceManager, poolID, orderID string) error
	OpenOrders(ctx context.Context, poolID, balanceManagerID string) ([]string, error)
	GetOrder(ctx context.Context, poolID, orderID string) (Order, error)
}

// BalanceManager is the custodial balance container. Mutations on behalf of a
// user must be preceded by an ownership check.
type BalanceManager interface {
	ID() string
	Owner() string
	Balance(coin CoinType) uint64
	Deposit(c Coin) error
	Withdraw(coin CoinType, amount uint64) (Coin, error)
}

// Wallet holds the coins a caller brings into an operation.
type Wallet interface {
	Owner() string
	Balance(coin CoinType) uint64
	Deposit(c Coin) error
	Withdraw(coin CoinType, amount uint64) (Coin, error)
}

// Quote is one price observation from an oracle feed.
type Quote struct {
	FeedID      string
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime time.Time
}

type PriceFeed interface {
	Quote(ctx context.Context, feedID string) (Quote, error)
}
