// Package router places orders on the matching engine on behalf of users,
// sourcing DEEP, the coverage fee, protocol fees and the input coin, and
// settles the maker fees it holds when those orders leave the book.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/kafka"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/protocolfee"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/unsettled"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/vault"
)

// RateSource prices DEEP in reference coin units per DEEP unit, in billionths.
// ReferencePerDeep is the oracle-backed rate that prices reserve draws.
// PoolReferencePerDeep reads the reference pool only and converts protocol
// fees when no reserve DEEP is used.
type RateSource interface {
	ReferencePerDeep(ctx context.Context) (uint64, error)
	PoolReferencePerDeep(ctx context.Context) (uint64, error)
}

// DiscountSource returns an owner's volume tier discount in billionths.
type DiscountSource interface {
	Discount(ctx context.Context, owner string) (uint64, error)
}

// OrderRecord is what the router remembers about a placed order.
type OrderRecord struct {
	OrderID          string
	PoolID           string
	BalanceManagerID string
	Owner            string
	FeeType          protocolfee.FeeType
	IsBid            bool
	Quantity         uint64
	ExecutedQuantity uint64
	// Notional is the executed value in the pool's quote coin.
	Notional         uint64
	FeeCoin          domain.CoinType
	TakerFee         uint64
	MakerFee         uint64
	CoverageFee      uint64
	DeepFromReserves uint64
	CreatedAt        time.Time
}

// OrderJournal persists placed orders. Tier volumes are derived from it.
type OrderJournal interface {
	RecordOrder(ctx context.Context, record OrderRecord) error
}

type Options struct {
	ReferenceCoin domain.CoinType
	Version       uint64
	EventsTopic   string
}

type Router struct {
	mu        sync.Mutex
	engine    domain.MatchingEngine
	vault     *vault.Handle
	oracle    RateSource
	fees      *protocolfee.Config
	ledger    *unsettled.Ledger
	discounts DiscountSource
	orders    OrderJournal
	producer  kafka.Publisher
	topic     string
	reference domain.CoinType
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

func New(engine domain.MatchingEngine, v *vault.Vault, oracle RateSource, fees *protocolfee.Config, ledger *unsettled.Ledger, opts Options, logger *slog.Logger, metrics *Metrics) (*Router, error) {
	if engine == nil || v == nil || oracle == nil || fees == nil || ledger == nil {
		return nil, fmt.Errorf("router: engine, vault, oracle, fees and ledger are required")
	}
	if strings.TrimSpace(string(opts.ReferenceCoin)) == "" {
		return nil, fmt.Errorf("router: reference coin required")
	}
	if opts.Version == 0 {
		opts.Version = vault.CurrentVersion
	}
	if strings.TrimSpace(opts.EventsTopic) == "" {
		opts.EventsTopic = DefaultEventsTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		engine:    engine,
		vault:     v.WithVersion(opts.Version),
		oracle:    oracle,
		fees:      fees,
		ledger:    ledger,
		topic:     opts.EventsTopic,
		reference: opts.ReferenceCoin,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// WithDiscounts enables volume tier discounts.
func (r *Router) WithDiscounts(src DiscountSource) *Router {
	r.discounts = src
	return r
}

// WithOrderJournal records every placed order.
func (r *Router) WithOrderJournal(j OrderJournal) *Router {
	r.orders = j
	return r
}

// WithPublisher publishes fee events to the configured topic.
func (r *Router) WithPublisher(p kafka.Publisher) *Router {
	r.producer = p
	return r
}

// WithClock replaces the time source.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

func (r *Router) ReferenceCoin() domain.CoinType {
	return r.reference
}

func (r *Router) DeepType() domain.CoinType {
	return r.vault.Vault().DeepType()
}

// UnsettledFees lists pending maker fees held for a balance manager.
func (r *Router) UnsettledFees(ctx context.Context, balanceManagerID string) ([]unsettled.Entry, error) {
	return r.ledger.ListByBalanceManager(ctx, balanceManagerID)
}

// UnsettledFee returns the pending maker fee held for one order.
func (r *Router) UnsettledFee(ctx context.Context, key domain.OrderKey) (unsettled.Entry, bool, error) {
	return r.ledger.Get(ctx, key)
}

func (r *Router) tierDiscount(ctx context.Context, owner string) uint64 {
	if r.discounts == nil || owner == "" {
		return 0
	}
	d, err := r.discounts.Discount(ctx, owner)
	if err != nil {
		r.logger.Warn("tier discount lookup failed", "owner", owner, "error", err)
		return 0
	}
	return d
}

func (r *Router) recordOrder(ctx context.Context, rec OrderRecord) {
	if r.orders == nil {
		return
	}
	if err := r.orders.RecordOrder(ctx, rec); err != nil {
		r.logger.Error("order record failed", "order_id", rec.OrderID, "pool_id", rec.PoolID, "error", err)
	}
}
