// Package book is an in-process matching engine with DeepBook-style pools:
// integer prices in billionths, escrowed input coins, and trading fees paid
// either in DEEP or in the input coin at a penalty.
package book

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/kafka"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
	"github.com/google/uuid"
)

const (
	EventTypeOrderClosed = "orders.closed"

	// inputFeePenalty scales trading fees paid in the input coin.
	inputFeePenalty uint64 = 1_250_000_000
)

// PoolSpec configures one trading pair. Rates are in billionths; DeepPerBase
// is DEEP per base unit in billionths.
type PoolSpec struct {
	ID           string          `mapstructure:"id" json:"id"`
	Base         domain.CoinType `mapstructure:"base" json:"base"`
	Quote        domain.CoinType `mapstructure:"quote" json:"quote"`
	TickSize     uint64          `mapstructure:"tick_size" json:"tick_size"`
	LotSize      uint64          `mapstructure:"lot_size" json:"lot_size"`
	MinSize      uint64          `mapstructure:"min_size" json:"min_size"`
	TakerFeeRate uint64          `mapstructure:"taker_fee_rate" json:"taker_fee_rate"`
	MakerFeeRate uint64          `mapstructure:"maker_fee_rate" json:"maker_fee_rate"`
	DeepPerBase  uint64          `mapstructure:"deep_per_base" json:"deep_per_base"`
	Whitelisted  bool            `mapstructure:"whitelisted" json:"whitelisted"`
}

func (s PoolSpec) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return fmt.Errorf("pool id required")
	case s.Base == "" || s.Quote == "" || s.Base == s.Quote:
		return fmt.Errorf("pool %s: base and quote must be distinct coins", s.ID)
	case s.TickSize == 0 || s.LotSize == 0:
		return fmt.Errorf("pool %s: tick and lot size must be positive", s.ID)
	case s.MinSize < s.LotSize || s.MinSize%s.LotSize != 0:
		return fmt.Errorf("pool %s: min size must be a positive multiple of lot size", s.ID)
	case s.TakerFeeRate > fixedmath.FloatScaling || s.MakerFeeRate > s.TakerFeeRate:
		return fmt.Errorf("pool %s: fee rates must satisfy maker <= taker <= 100%%", s.ID)
	}
	return nil
}

type Metrics interface {
	ObserveOrder(poolID, status string, duration time.Duration)
	SetBookDepth(poolID, side string, depth float64)
}

type market struct {
	spec PoolSpec
	book *OrderBook
}

func (m *market) inputCoin(isBid bool) domain.CoinType {
	if isBid {
		return m.spec.Quote
	}
	return m.spec.Base
}

func (m *market) deepFee(quantity, rate uint64) (uint64, error) {
	if m.spec.Whitelisted {
		return 0, nil
	}
	deep, err := fixedmath.Mul(quantity, m.spec.DeepPerBase)
	if err != nil {
		return 0, err
	}
	return fixedmath.Mul(deep, rate)
}

// tradingFee prices the taker and maker parts of an order. DEEP fees scale
// with quantity; input-coin fees scale with the input amount.
func (m *market) tradingFee(deepType domain.CoinType, isBid, payWithDeep bool, takerQty, takerAmount, makerQty, makerAmount uint64) (domain.Coin, error) {
	if m.spec.Whitelisted {
		return domain.Coin{}, nil
	}
	var takerFee, makerFee uint64
	var err error
	if payWithDeep {
		if takerFee, err = m.deepFee(takerQty, m.spec.TakerFeeRate); err != nil {
			return domain.Coin{}, err
		}
		if makerFee, err = m.deepFee(makerQty, m.spec.MakerFeeRate); err != nil {
			return domain.Coin{}, err
		}
	} else {
		if takerFee, err = penalized(takerAmount, m.spec.TakerFeeRate); err != nil {
			return domain.Coin{}, err
		}
		if makerFee, err = penalized(makerAmount, m.spec.MakerFeeRate); err != nil {
			return domain.Coin{}, err
		}
	}
	total, err := fixedmath.Add(takerFee, makerFee)
	if err != nil {
		return domain.Coin{}, err
	}
	coin := m.inputCoin(isBid)
	if payWithDeep {
		coin = deepType
	}
	return domain.NewCoin(coin, total), nil
}

func penalized(amount, rate uint64) (uint64, error) {
	scaled, err := fixedmath.Mul(rate, inputFeePenalty)
	if err != nil {
		return 0, err
	}
	return fixedmath.Mul(amount, scaled)
}

type placement struct {
	clientOrderID uint64
	price         uint64
	quantity      uint64
	isBid         bool
	market        bool
	orderType     domain.OrderType
	selfMatching  domain.SelfMatchingOption
	expire        uint64
	payWithDeep   bool
}

type closedOrder struct {
	poolID string
	order  domain.Order
	reason string
	at     time.Time
}

// Engine implements domain.MatchingEngine over a set of pools. All book
// mutations are serialized by one mutex; closed-order events are published
// after it is released.
type Engine struct {
	mu          sync.Mutex
	markets     map[string]*market
	deepType    domain.CoinType
	fees        map[domain.CoinType]uint64
	producer    kafka.Publisher
	closedTopic string
	logger      *slog.Logger
	metrics     Metrics
	now         func() time.Time
}

func NewEngine(deepType domain.CoinType, producer kafka.Publisher, closedTopic string, logger *slog.Logger, metrics Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(closedTopic) == "" {
		closedTopic = DefaultClosedTopic
	}
	return &Engine{
		markets:     make(map[string]*market),
		deepType:    deepType,
		fees:        make(map[domain.CoinType]uint64),
		producer:    producer,
		closedTopic: closedTopic,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) AddPool(spec PoolSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.markets[spec.ID]; exists {
		return fmt.Errorf("pool %s already registered", spec.ID)
	}
	e.markets[spec.ID] = &market{spec: spec, book: NewOrderBook()}
	e.logger.Info("pool registered", "pool_id", spec.ID, "base", spec.Base, "quote", spec.Quote, "whitelisted", spec.Whitelisted)
	return nil
}

// Pools lists registered pool specs sorted by id.
func (e *Engine) Pools() []PoolSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PoolSpec, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, m.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CollectedFees is the trading fee total the engine kept in coin.
func (e *Engine) CollectedFees(coin domain.CoinType) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fees[coin]
}

func (e *Engine) marketLocked(poolID string) (*market, error) {
	m, ok := e.markets[poolID]
	if !ok {
		return nil, domain.Wrapf(domain.ErrPoolNotFound, "%s", poolID)
	}
	return m, nil
}

func (e *Engine) spec(poolID string) (PoolSpec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		return PoolSpec{}, err
	}
	return m.spec, nil
}

func (e *Engine) Pool(_ context.Context, poolID string) (domain.Pool, error) {
	spec, err := e.spec(poolID)
	if err != nil {
		return domain.Pool{}, err
	}
	return domain.Pool{ID: spec.ID, Base: spec.Base, Quote: spec.Quote}, nil
}

func (e *Engine) IsWhitelisted(_ context.Context, poolID string) (bool, error) {
	spec, err := e.spec(poolID)
	if err != nil {
		return false, err
	}
	return spec.Whitelisted, nil
}

func (e *Engine) BookParams(_ context.Context, poolID string) (domain.BookParams, error) {
	spec, err := e.spec(poolID)
	if err != nil {
		return domain.BookParams{}, err
	}
	return domain.BookParams{TickSize: spec.TickSize, LotSize: spec.LotSize, MinSize: spec.MinSize}, nil
}

func (e *Engine) TradeFeeRate(_ context.Context, poolID string) (uint64, error) {
	spec, err := e.spec(poolID)
	if err != nil {
		return 0, err
	}
	return spec.TakerFeeRate, nil
}

// DeepRequired is the DEEP needed to place quantity as a full taker.
func (e *Engine) DeepRequired(_ context.Context, poolID string, quantity, _ uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		return 0, err
	}
	return m.deepFee(quantity, m.spec.TakerFeeRate)
}

func (e *Engine) MarketQuote(_ context.Context, poolID string, quantity uint64, isBid bool) (domain.MarketQuote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	probe := &order{isBid: isBid, quantity: quantity}
	_, quote, err := m.book.walk(probe, true, domain.SelfMatchingAllowed)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	deep, err := m.deepFee(quantity, m.spec.TakerFeeRate)
	if err != nil {
		return domain.MarketQuote{}, err
	}
	return domain.MarketQuote{QuoteAmount: quote, DeepRequired: deep}, nil
}

func (e *Engine) MidPrice(_ context.Context, poolID string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		return 0, err
	}
	bid, okBid := m.book.BestBid()
	ask, okAsk := m.book.BestAsk()
	if !okBid || !okAsk {
		return 0, domain.Wrapf(domain.ErrReferencePoolPrice, "pool %s has an empty side", poolID)
	}
	return bid/2 + ask/2 + (bid%2+ask%2)/2, nil
}

func (e *Engine) PlaceLimitOrder(ctx context.Context, bm domain.BalanceManager, req domain.LimitOrderRequest) (domain.OrderInfo, error) {
	return e.place(ctx, bm, req.PoolID, placement{
		clientOrderID: req.ClientOrderID,
		price:         req.Price,
		quantity:      req.Quantity,
		isBid:         req.IsBid,
		orderType:     req.OrderType,
		selfMatching:  req.SelfMatching,
		expire:        req.ExpireTimestamp,
		payWithDeep:   req.PayWithDeep,
	})
}

func (e *Engine) PlaceMarketOrder(ctx context.Context, bm domain.BalanceManager, req domain.MarketOrderRequest) (domain.OrderInfo, error) {
	return e.place(ctx, bm, req.PoolID, placement{
		clientOrderID: req.ClientOrderID,
		quantity:      req.Quantity,
		isBid:         req.IsBid,
		market:        true,
		orderType:     domain.ImmediateOrCancel,
		selfMatching:  req.SelfMatching,
		expire:        domain.MaxTimestamp,
		payWithDeep:   req.PayWithDeep,
	})
}

func (e *Engine) place(ctx context.Context, bm domain.BalanceManager, poolID string, p placement) (domain.OrderInfo, error) {
	start := e.now()
	if bm == nil {
		return domain.OrderInfo{}, domain.Wrapf(domain.ErrInvalidOrder, "balance manager required")
	}

	e.mu.Lock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		e.mu.Unlock()
		return domain.OrderInfo{}, err
	}
	info, closed, err := e.placeLocked(bm, m, p)
	bids, asks := m.book.Depth(true), m.book.Depth(false)
	e.mu.Unlock()
	if err != nil {
		return domain.OrderInfo{}, err
	}

	e.publishClosed(ctx, closed)
	e.observe(poolID, info.Status.String(), e.now().Sub(start), bids, asks)
	return info, nil
}

func (e *Engine) placeLocked(bm domain.BalanceManager, m *market, p placement) (domain.OrderInfo, []closedOrder, error) {
	if err := validatePlacement(m.spec, p); err != nil {
		return domain.OrderInfo{}, nil, err
	}
	if p.orderType == domain.PostOnly && m.book.crossesBook(p.isBid, p.price) {
		return domain.OrderInfo{}, nil, domain.Wrapf(domain.ErrInvalidOrder, "post-only order would take liquidity")
	}

	taker := &order{
		id:            uuid.NewString(),
		clientOrderID: p.clientOrderID,
		bm:            bm,
		isBid:         p.isBid,
		price:         p.price,
		quantity:      p.quantity,
		expire:        p.expire,
		createdAt:     e.now().UTC(),
	}
	info := domain.OrderInfo{
		OrderID:          taker.id,
		PoolID:           m.spec.ID,
		BalanceManagerID: bm.ID(),
		ClientOrderID:    p.clientOrderID,
		Price:            p.price,
		OriginalQuantity: p.quantity,
		IsBid:            p.isBid,
	}

	fillable, cost, err := m.book.walk(taker, p.market, p.selfMatching)
	if err != nil {
		return domain.OrderInfo{}, nil, err
	}
	if p.orderType == domain.FillOrKill && fillable < p.quantity {
		info.Status = domain.StatusCancelled
		return info, nil, nil
	}

	inputCoin := m.inputCoin(p.isBid)
	escrow := p.quantity
	if p.isBid {
		escrow = cost
		if !p.market {
			if escrow, err = fixedmath.Mul(p.quantity, p.price); err != nil {
				return domain.OrderInfo{}, nil, err
			}
		}
	}
	worst, err := m.tradingFee(e.deepType, p.isBid, p.payWithDeep, p.quantity, escrow, 0, 0)
	if err != nil {
		return domain.OrderInfo{}, nil, err
	}
	if err := checkFunds(bm, domain.NewCoin(inputCoin, escrow), worst); err != nil {
		return domain.OrderInfo{}, nil, err
	}

	locked, err := bm.Withdraw(inputCoin, escrow)
	if err != nil {
		return domain.OrderInfo{}, nil, err
	}
	taker.escrow = locked.Value

	res := m.book.match(taker, p.market, p.selfMatching)
	var closed []closedOrder
	var takerAmount uint64
	for _, f := range res.fills {
		spent, err := e.settleFill(m, taker, f)
		if err != nil {
			return domain.OrderInfo{}, nil, err
		}
		if takerAmount, err = fixedmath.Add(takerAmount, spent); err != nil {
			return domain.OrderInfo{}, nil, err
		}
		if f.maker.remaining() == 0 {
			if err := e.release(m, f.maker); err != nil {
				return domain.OrderInfo{}, nil, err
			}
			closed = append(closed, closedOrder{poolID: m.spec.ID, order: f.maker.view(), reason: CloseReasonFilled, at: e.now().UTC()})
		}
	}
	for _, o := range res.cancelled {
		if err := e.release(m, o); err != nil {
			return domain.OrderInfo{}, nil, err
		}
		closed = append(closed, closedOrder{poolID: m.spec.ID, order: o.view(), reason: CloseReasonCancelled, at: e.now().UTC()})
	}

	var restQty uint64
	switch {
	case taker.filled == taker.quantity:
		info.Status = domain.StatusFilled
	case p.market, p.orderType == domain.ImmediateOrCancel, p.orderType == domain.FillOrKill, res.stopped:
		info.Status = domain.StatusCancelled
	default:
		restQty = taker.remaining()
		info.Status = domain.StatusLive
		if taker.filled > 0 {
			info.Status = domain.StatusPartiallyFilled
		}
	}
	info.ExecutedQuantity = taker.filled

	restAmount := restQty
	if p.isBid && restQty > 0 {
		if restAmount, err = fixedmath.Mul(restQty, p.price); err != nil {
			return domain.OrderInfo{}, nil, err
		}
	}
	if taker.escrow > restAmount {
		if err := bm.Deposit(domain.NewCoin(inputCoin, taker.escrow-restAmount)); err != nil {
			return domain.OrderInfo{}, nil, err
		}
		taker.escrow = restAmount
	}
	if restQty > 0 {
		m.book.add(taker)
	}

	fee, err := m.tradingFee(e.deepType, p.isBid, p.payWithDeep, taker.filled, takerAmount, restQty, restAmount)
	if err != nil {
		return domain.OrderInfo{}, nil, err
	}
	if fee.Value > 0 {
		paid, err := bm.Withdraw(fee.Type, fee.Value)
		if err != nil {
			return domain.OrderInfo{}, nil, err
		}
		e.fees[paid.Type] += paid.Value
	}
	return info, closed, nil
}

// settleFill moves coins for one fill and returns the taker's input spent.
func (e *Engine) settleFill(m *market, taker *order, f fill) (uint64, error) {
	value, err := fixedmath.Mul(f.quantity, f.price)
	if err != nil {
		return 0, err
	}
	base := domain.NewCoin(m.spec.Base, f.quantity)
	quote := domain.NewCoin(m.spec.Quote, value)
	if taker.isBid {
		if err := debit(&taker.escrow, value); err != nil {
			return 0, err
		}
		if err := debit(&f.maker.escrow, f.quantity); err != nil {
			return 0, err
		}
		if err := taker.bm.Deposit(base); err != nil {
			return 0, err
		}
		return value, f.maker.bm.Deposit(quote)
	}
	if err := debit(&taker.escrow, f.quantity); err != nil {
		return 0, err
	}
	if err := debit(&f.maker.escrow, value); err != nil {
		return 0, err
	}
	if err := taker.bm.Deposit(quote); err != nil {
		return 0, err
	}
	return f.quantity, f.maker.bm.Deposit(base)
}

// release returns an order's remaining escrow to its balance manager.
func (e *Engine) release(m *market, o *order) error {
	if o.escrow == 0 {
		return nil
	}
	if err := o.bm.Deposit(domain.NewCoin(m.inputCoin(o.isBid), o.escrow)); err != nil {
		return err
	}
	o.escrow = 0
	return nil
}

func (e *Engine) CancelOrder(ctx context.Context, bm domain.BalanceManager, poolID, orderID string) error {
	e.mu.Lock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	o, ok := m.book.get(orderID)
	if !ok {
		e.mu.Unlock()
		return domain.Wrapf(domain.ErrOrderNotFound, "%s in pool %s", orderID, poolID)
	}
	if bm == nil || o.bm.ID() != bm.ID() {
		e.mu.Unlock()
		return domain.ErrNotOwner
	}
	m.book.remove(orderID)
	if err := e.release(m, o); err != nil {
		e.mu.Unlock()
		return err
	}
	closed := closedOrder{poolID: poolID, order: o.view(), reason: CloseReasonCancelled, at: e.now().UTC()}
	bids, asks := m.book.Depth(true), m.book.Depth(false)
	e.mu.Unlock()

	e.publishClosed(ctx, []closedOrder{closed})
	e.observe(poolID, domain.StatusCancelled.String(), 0, bids, asks)
	return nil
}

// OpenOrders lists resting order ids of one balance manager, sorted.
func (e *Engine) OpenOrders(_ context.Context, poolID, balanceManagerID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		return nil, err
	}
	ids := m.book.ordersOf(balanceManagerID)
	sort.Strings(ids)
	return ids, nil
}

// GetOrder returns a resting order. Orders that left the book are not found.
func (e *Engine) GetOrder(_ context.Context, poolID, orderID string) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.marketLocked(poolID)
	if err != nil {
		return domain.Order{}, err
	}
	o, ok := m.book.get(orderID)
	if !ok {
		return domain.Order{}, domain.Wrapf(domain.ErrOrderNotFound, "%s in pool %s", orderID, poolID)
	}
	return o.view(), nil
}

func (e *Engine) publishClosed(ctx context.Context, closed []closedOrder) {
	if e.producer == nil {
		return
	}
	for _, c := range closed {
		env, err := kafka.NewEnvelope(EventTypeOrderClosed, 1, c.poolID, c.order.OrderID, c.reason)
		if err != nil {
			e.logger.Error("order closed envelope failed", "order_id", c.order.OrderID, "error", err)
			continue
		}
		payload := OrderClosedEvent{
			Envelope:         env,
			PoolID:           c.poolID,
			BalanceManagerID: c.order.BalanceManagerID,
			OrderID:          c.order.OrderID,
			Reason:           c.reason,
			Quantity:         c.order.Quantity,
			FilledQuantity:   c.order.FilledQuantity,
			ClosedAt:         c.at.Format(time.RFC3339),
		}
		if _, _, err := e.producer.PublishJSON(ctx, e.closedTopic, c.order.BalanceManagerID, payload); err != nil {
			e.logger.Error("order closed publish failed", "pool_id", c.poolID, "order_id", c.order.OrderID, "error", err)
		}
	}
}

func (e *Engine) observe(poolID, status string, duration time.Duration, bids, asks int) {
	if e.metrics == nil {
		return
	}
	if duration > 0 {
		e.metrics.ObserveOrder(poolID, status, duration)
	}
	e.metrics.SetBookDepth(poolID, "bid", float64(bids))
	e.metrics.SetBookDepth(poolID, "ask", float64(asks))
}

func validatePlacement(spec PoolSpec, p placement) error {
	if p.quantity < spec.MinSize {
		return domain.Wrapf(domain.ErrOrderBelowMinimum, "quantity %d, minimum %d", p.quantity, spec.MinSize)
	}
	if p.quantity%spec.LotSize != 0 {
		return domain.Wrapf(domain.ErrQuantityNotLotMultiple, "quantity %d, lot %d", p.quantity, spec.LotSize)
	}
	if !p.market {
		if p.price == 0 {
			return domain.Wrapf(domain.ErrInvalidOrder, "price must be positive")
		}
		if p.price%spec.TickSize != 0 {
			return domain.Wrapf(domain.ErrPriceNotTickMultiple, "price %d, tick %d", p.price, spec.TickSize)
		}
	}
	if p.orderType > domain.PostOnly {
		return domain.Wrapf(domain.ErrInvalidOrder, "order type %d", p.orderType)
	}
	if p.selfMatching > domain.CancelMaker {
		return domain.Wrapf(domain.ErrUnsupportedSelfMatching, "option %d", p.selfMatching)
	}
	return nil
}

// checkFunds verifies bm can cover escrow and the worst-case fee together.
func checkFunds(bm domain.BalanceManager, escrow, fee domain.Coin) error {
	needs := map[domain.CoinType]uint64{escrow.Type: escrow.Value}
	if fee.Value > 0 {
		total, err := fixedmath.Add(needs[fee.Type], fee.Value)
		if err != nil {
			return err
		}
		needs[fee.Type] = total
	}
	for coin, need := range needs {
		if have := bm.Balance(coin); have < need {
			return domain.Wrapf(domain.ErrInsufficientBalance, "%s: need %d, have %d", coin, need, have)
		}
	}
	return nil
}

func debit(balance *uint64, amount uint64) error {
	if amount > *balance {
		return domain.Wrapf(domain.ErrArithmeticOverflow, "escrow %d below debit %d", *balance, amount)
	}
	*balance -= amount
	return nil
}
