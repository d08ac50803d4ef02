package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/custody"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/planner"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/protocolfee"
)

// OrderRequest is a limit or market order placed through the router. The
// estimate and slippage fields only apply to the coverage fee type.
type OrderRequest struct {
	FeeType         protocolfee.FeeType
	PoolID          string
	ClientOrderID   uint64
	Price           uint64
	Quantity        uint64
	IsBid           bool
	Market          bool
	OrderType       domain.OrderType
	SelfMatching    domain.SelfMatchingOption
	ExpireTimestamp uint64

	EstimatedDeepRequired uint64
	DeepRequiredSlippage  uint64
	EstimatedCoverageFee  uint64
	CoverageFeeSlippage   uint64
}

type OrderResult struct {
	Order            domain.OrderInfo
	FeeType          protocolfee.FeeType
	FeeCoin          domain.CoinType
	ProtocolFees     protocolfee.Fees
	Discount         uint64
	DeepRequired     uint64
	DeepFromReserves uint64
	CoverageFee      uint64
	Refunded         uint64
}

// orderPlan is every sourcing decision for one order, made before any
// balance moves.
type orderPlan struct {
	feeType      protocolfee.FeeType
	pool         domain.Pool
	whitelisted  bool
	inputCoin    domain.CoinType
	orderAmount  uint64
	quoteAmount  uint64
	deepRequired uint64
	deep         planner.DeepPlan
	rate         uint64
	coverageFee  uint64
	coverage     planner.FundingPlan
	feeCoin      domain.CoinType
	feeBase      uint64
	rates        protocolfee.Rates
	discount     uint64
	maxFees      protocolfee.Fees
	escrow       protocolfee.CollectionPlan
	engineFee    uint64
	input        planner.InputPlan
}

func (p orderPlan) escrowFromWallet() uint64 {
	return p.escrow.TakerFromWallet + p.escrow.MakerFromWallet
}

func (p orderPlan) escrowFromManager() uint64 {
	return p.escrow.TakerFromBM + p.escrow.MakerFromBM
}

func (p orderPlan) sufficient() bool {
	return p.deep.Sufficient && p.coverage.Sufficient && p.escrow.Sufficient && p.input.Sufficient
}

// funds tracks what the wallet and balance manager can still give while a
// plan is built, so later steps see what earlier steps already claimed.
type funds struct {
	wallet domain.Wallet
	bm     domain.BalanceManager
	taken  map[fundKey]uint64
}

type fundKey struct {
	wallet bool
	coin   domain.CoinType
}

func newFunds(wallet domain.Wallet, bm domain.BalanceManager) *funds {
	return &funds{wallet: wallet, bm: bm, taken: make(map[fundKey]uint64)}
}

func (f *funds) inWallet(coin domain.CoinType) uint64 {
	if f.wallet == nil {
		return 0
	}
	return f.wallet.Balance(coin) - f.taken[fundKey{wallet: true, coin: coin}]
}

func (f *funds) inManager(coin domain.CoinType) uint64 {
	if f.bm == nil {
		return 0
	}
	return f.bm.Balance(coin) - f.taken[fundKey{coin: coin}]
}

func (f *funds) take(coin domain.CoinType, fromWallet, fromManager uint64) {
	f.taken[fundKey{wallet: true, coin: coin}] += fromWallet
	f.taken[fundKey{coin: coin}] += fromManager
}

func (r *Router) buildPlan(ctx context.Context, bm domain.BalanceManager, wallet domain.Wallet, req OrderRequest) (orderPlan, error) {
	if !req.FeeType.Valid() {
		return orderPlan{}, domain.Wrapf(domain.ErrInvalidOrder, "fee type %q", req.FeeType)
	}
	pool, err := r.engine.Pool(ctx, req.PoolID)
	if err != nil {
		return orderPlan{}, err
	}
	whitelisted, err := r.engine.IsWhitelisted(ctx, pool.ID)
	if err != nil {
		return orderPlan{}, err
	}
	params, err := r.engine.BookParams(ctx, pool.ID)
	if err != nil {
		return orderPlan{}, err
	}
	if err := planner.ValidateOrderSize(params, req.Quantity, req.Price, !req.Market); err != nil {
		return orderPlan{}, err
	}

	plan := orderPlan{
		feeType:     req.FeeType,
		pool:        pool,
		whitelisted: whitelisted,
		inputCoin:   pool.InputCoin(req.IsBid),
		rates:       r.fees.Rates(req.FeeType, pool.ID),
	}
	if req.Market {
		quote, err := r.engine.MarketQuote(ctx, pool.ID, req.Quantity, req.IsBid)
		if err != nil {
			return orderPlan{}, err
		}
		plan.orderAmount = req.Quantity
		if req.IsBid {
			plan.orderAmount = quote.QuoteAmount
		}
		plan.quoteAmount = quote.QuoteAmount
		plan.deepRequired = quote.DeepRequired
	} else {
		if plan.orderAmount, err = planner.OrderAmount(req.Quantity, req.Price, req.IsBid); err != nil {
			return orderPlan{}, err
		}
		if plan.quoteAmount, err = planner.OrderAmount(req.Quantity, req.Price, true); err != nil {
			return orderPlan{}, err
		}
		if plan.deepRequired, err = r.engine.DeepRequired(ctx, pool.ID, req.Quantity, req.Price); err != nil {
			return orderPlan{}, err
		}
	}
	if whitelisted {
		plan.deepRequired = 0
	}

	var owner string
	if bm != nil {
		owner = bm.Owner()
	}
	tier := r.tierDiscount(ctx, owner)
	avail := newFunds(wallet, bm)

	switch req.FeeType {
	case protocolfee.FeeTypeCoverage:
		if err := r.planCoverage(ctx, &plan, avail); err != nil {
			return orderPlan{}, err
		}
		deepDiscount, err := protocolfee.DeepFundedDiscount(plan.rates.MaxDiscount, plan.deepRequired, plan.deep.FromReserves)
		if err != nil {
			return orderPlan{}, err
		}
		plan.discount = protocolfee.CombineDiscounts(plan.rates.MaxDiscount, deepDiscount, tier)
		plan.feeCoin = r.reference
		if plan.feeBase, err = fixedmath.Mul(plan.deepRequired, plan.rate); err != nil {
			return orderPlan{}, err
		}
	case protocolfee.FeeTypeInput:
		plan.deep = planner.DeepPlan{Sufficient: true}
		plan.coverage = planner.FundingPlan{Sufficient: true}
		if !whitelisted {
			takerRate, err := r.engine.TradeFeeRate(ctx, pool.ID)
			if err != nil {
				return orderPlan{}, err
			}
			if plan.engineFee, err = planner.InputCoinEngineFee(plan.orderAmount, takerRate); err != nil {
				return orderPlan{}, err
			}
		}
		plan.discount = protocolfee.CombineDiscounts(plan.rates.MaxDiscount, 0, tier)
		plan.feeCoin = plan.inputCoin
		plan.feeBase = plan.orderAmount
	}

	if plan.maxFees, err = protocolfee.MaxFees(plan.feeBase, plan.rates, plan.discount); err != nil {
		return orderPlan{}, err
	}
	plan.escrow = protocolfee.PlanCollection(plan.maxFees, avail.inWallet(plan.feeCoin), avail.inManager(plan.feeCoin))
	if plan.escrow.Sufficient {
		avail.take(plan.feeCoin, plan.escrowFromWallet(), plan.escrowFromManager())
	}

	required, err := fixedmath.Add(plan.orderAmount, plan.engineFee)
	if err != nil {
		return orderPlan{}, err
	}
	plan.input = planner.PlanInputCoinDeposit(required, avail.inManager(plan.inputCoin), avail.inWallet(plan.inputCoin))
	return plan, nil
}

// planCoverage sources DEEP and prices any reserve draw. The oracle is only
// consulted when the reserve is used; a protocol fee owed on self-funded DEEP
// is converted at the reference pool rate.
func (r *Router) planCoverage(ctx context.Context, plan *orderPlan, avail *funds) error {
	deepType := r.DeepType()
	plan.deep = planner.PlanDeep(plan.whitelisted, plan.deepRequired,
		avail.inManager(deepType), avail.inWallet(deepType), r.vault.Vault().DeepReserves())
	if !plan.deep.Sufficient {
		plan.coverage = planner.FundingPlan{Sufficient: true}
		return nil
	}
	avail.take(deepType, plan.deep.FromWallet, plan.deep.FromBalanceManager)

	owesProtocolFee := plan.deepRequired > 0 && (plan.rates.TakerRate > 0 || plan.rates.MakerRate > 0)
	switch {
	case plan.deep.UsesReserves():
		rate, err := r.oracle.ReferencePerDeep(ctx)
		if err != nil {
			return err
		}
		plan.rate = rate
	case owesProtocolFee:
		rate, err := r.oracle.PoolReferencePerDeep(ctx)
		if err != nil {
			return err
		}
		plan.rate = rate
	}

	fee, err := planner.CoverageFee(plan.whitelisted, plan.deep.FromReserves, plan.rate)
	if err != nil {
		return err
	}
	plan.coverageFee = fee
	plan.coverage = planner.PlanCoverageFee(fee, avail.inWallet(r.reference), avail.inManager(r.reference))
	if plan.coverage.Sufficient {
		avail.take(r.reference, plan.coverage.FromWallet, plan.coverage.FromBalanceManager)
	}
	return nil
}

// CreateLimitOrder places a limit order.
func (r *Router) CreateLimitOrder(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, req OrderRequest) (OrderResult, error) {
	req.Market = false
	return r.PlaceOrder(ctx, caller, bm, wallet, req)
}

// CreateMarketOrder places a market order. Market orders never rest and
// never expire.
func (r *Router) CreateMarketOrder(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, req OrderRequest) (OrderResult, error) {
	req.Market = true
	req.Price = 0
	req.OrderType = domain.ImmediateOrCancel
	req.ExpireTimestamp = domain.MaxTimestamp
	return r.PlaceOrder(ctx, caller, bm, wallet, req)
}

// PlaceOrder sources every input, places the order and charges the protocol
// fee. Either the whole operation takes effect or no balance changes.
func (r *Router) PlaceOrder(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, req OrderRequest) (OrderResult, error) {
	start := r.now()
	result, err := r.placeOrder(ctx, caller, bm, wallet, req)
	status := "error"
	if err == nil {
		status = result.Order.Status.String()
	}
	r.metrics.orderPlaced(string(req.FeeType), status, r.now().Sub(start))
	return result, err
}

func (r *Router) placeOrder(ctx context.Context, caller string, bm domain.BalanceManager, wallet domain.Wallet, req OrderRequest) (OrderResult, error) {
	if err := custody.CheckOwner(bm, caller); err != nil {
		return OrderResult{}, err
	}
	if wallet == nil || wallet.Owner() != caller {
		return OrderResult{}, domain.Wrapf(domain.ErrNotOwner, "wallet does not belong to caller")
	}
	if err := planner.ValidateOrderOptions(req.ExpireTimestamp, req.SelfMatching); err != nil {
		return OrderResult{}, err
	}
	if req.FeeType == protocolfee.FeeTypeCoverage {
		if err := planner.ValidateSlippage(req.DeepRequiredSlippage); err != nil {
			return OrderResult{}, err
		}
		if err := planner.ValidateSlippage(req.CoverageFeeSlippage); err != nil {
			return OrderResult{}, err
		}
	}
	if err := r.vault.CheckVersion(); err != nil {
		return OrderResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := r.buildPlan(ctx, bm, wallet, req)
	if err != nil {
		return OrderResult{}, err
	}
	if req.FeeType == protocolfee.FeeTypeCoverage {
		if err := planner.CheckSlippage(plan.deepRequired, req.EstimatedDeepRequired, req.DeepRequiredSlippage, domain.ErrDeepRequiredSlippage); err != nil {
			return OrderResult{}, err
		}
	}
	if !plan.deep.Sufficient {
		return OrderResult{}, domain.Wrapf(domain.ErrInsufficientDeepReserve, "need %d deep", plan.deepRequired)
	}
	if req.FeeType == protocolfee.FeeTypeCoverage {
		if err := planner.CheckSlippage(plan.coverageFee, req.EstimatedCoverageFee, req.CoverageFeeSlippage, domain.ErrCoverageFeeSlippage); err != nil {
			return OrderResult{}, err
		}
	}
	switch {
	case !plan.coverage.Sufficient:
		return OrderResult{}, domain.Wrapf(domain.ErrInsufficientCoverageFee, "need %d %s", plan.coverageFee, r.reference)
	case !plan.escrow.Sufficient:
		return OrderResult{}, domain.Wrapf(domain.ErrInsufficientProtocolFee, "need %d %s", plan.maxFees.Total(), plan.feeCoin)
	case !plan.input.Sufficient:
		return OrderResult{}, domain.Wrapf(domain.ErrInsufficientInputCoin, "need %d %s", plan.input.Required, plan.inputCoin)
	}

	j := newJournal("place_order", r.logger)
	escrow := newPouch(plan.feeCoin)
	if err := r.applyPlan(j, bm, wallet, plan, escrow); err != nil {
		j.rollback()
		return OrderResult{}, err
	}
	info, err := r.submit(ctx, bm, req)
	if err != nil {
		j.rollback()
		return OrderResult{}, err
	}

	result, err := r.chargeProtocolFee(ctx, bm, wallet, plan, info, escrow)
	r.recordOrder(ctx, OrderRecord{
		OrderID:          info.OrderID,
		PoolID:           info.PoolID,
		BalanceManagerID: info.BalanceManagerID,
		Owner:            caller,
		FeeType:          plan.feeType,
		IsBid:            info.IsBid,
		Quantity:         info.OriginalQuantity,
		ExecutedQuantity: info.ExecutedQuantity,
		Notional:         executedNotional(plan.quoteAmount, info),
		FeeCoin:          plan.feeCoin,
		TakerFee:         result.ProtocolFees.Taker,
		MakerFee:         result.ProtocolFees.Maker,
		CoverageFee:      plan.coverageFee,
		DeepFromReserves: plan.deep.FromReserves,
		CreatedAt:        r.now().UTC(),
	})
	r.publishCharged(ctx, result)
	r.metrics.feeCollected("coverage", string(r.reference), plan.coverageFee)
	r.metrics.feeCollected("taker", string(plan.feeCoin), result.ProtocolFees.Taker)
	r.metrics.feeCollected("maker_held", string(plan.feeCoin), result.ProtocolFees.Maker)

	r.logger.Info("order placed",
		"pool_id", info.PoolID,
		"balance_manager_id", info.BalanceManagerID,
		"order_id", info.OrderID,
		"fee_type", plan.feeType,
		"status", info.Status.String(),
		"deep_from_reserves", plan.deep.FromReserves,
		"coverage_fee", plan.coverageFee,
		"taker_fee", result.ProtocolFees.Taker,
		"maker_fee", result.ProtocolFees.Maker,
	)
	return result, err
}

// applyPlan moves every planned coin and journals the reverse moves.
func (r *Router) applyPlan(j *journal, bm domain.BalanceManager, wallet domain.Wallet, plan orderPlan, escrow *pouch) error {
	deepType := r.DeepType()
	if err := j.transfer(wallet, bm, deepType, plan.deep.FromWallet); err != nil {
		return err
	}
	if plan.deep.FromReserves > 0 {
		drawn, err := r.vault.DrawReserve(plan.deep.FromReserves)
		if err != nil {
			return err
		}
		if err := bm.Deposit(drawn); err != nil {
			if restoreErr := r.vault.DepositReserve(drawn); restoreErr != nil {
				r.logger.Error("reserve restore failed", "amount", drawn.Value, "error", restoreErr)
			}
			return err
		}
		j.add(func() error {
			back, err := bm.Withdraw(deepType, drawn.Value)
			if err != nil {
				return err
			}
			return r.vault.DepositReserve(back)
		})
	}

	if plan.coverageFee > 0 {
		fee := newPouch(r.reference)
		if err := j.transfer(wallet, fee, r.reference, plan.coverage.FromWallet); err != nil {
			return err
		}
		if err := j.transfer(bm, fee, r.reference, plan.coverage.FromBalanceManager); err != nil {
			return err
		}
		paid, err := fee.Withdraw(r.reference, plan.coverageFee)
		if err != nil {
			return err
		}
		if err := r.vault.AddCoverageFee(paid); err != nil {
			_ = fee.Deposit(paid)
			return err
		}
		j.add(func() error {
			back, err := r.vault.WithdrawCoverageFee(r.reference, paid.Value)
			if err != nil {
				return err
			}
			return fee.Deposit(back)
		})
	}

	if err := j.transfer(wallet, escrow, plan.feeCoin, plan.escrowFromWallet()); err != nil {
		return err
	}
	if err := j.transfer(bm, escrow, plan.feeCoin, plan.escrowFromManager()); err != nil {
		return err
	}
	return j.transfer(wallet, bm, plan.inputCoin, plan.input.FromWallet)
}

func (r *Router) submit(ctx context.Context, bm domain.BalanceManager, req OrderRequest) (domain.OrderInfo, error) {
	payWithDeep := req.FeeType == protocolfee.FeeTypeCoverage
	if req.Market {
		return r.engine.PlaceMarketOrder(ctx, bm, domain.MarketOrderRequest{
			PoolID:        req.PoolID,
			ClientOrderID: req.ClientOrderID,
			Quantity:      req.Quantity,
			IsBid:         req.IsBid,
			SelfMatching:  req.SelfMatching,
			PayWithDeep:   payWithDeep,
		})
	}
	return r.engine.PlaceLimitOrder(ctx, bm, domain.LimitOrderRequest{
		PoolID:          req.PoolID,
		ClientOrderID:   req.ClientOrderID,
		Price:           req.Price,
		Quantity:        req.Quantity,
		IsBid:           req.IsBid,
		OrderType:       req.OrderType,
		SelfMatching:    req.SelfMatching,
		ExpireTimestamp: req.ExpireTimestamp,
		PayWithDeep:     payWithDeep,
	})
}

// chargeProtocolFee splits the escrowed maximum fee by what the order did:
// the taker part goes to the vault, the maker part is held in the ledger and
// the rest goes back, wallet first. The order is already on the book, so
// failures here are reported alongside a valid result. A resting order whose
// maker fee could not be held is cancelled, so no order rests unrecorded.
func (r *Router) chargeProtocolFee(ctx context.Context, bm domain.BalanceManager, wallet domain.Wallet, plan orderPlan, info domain.OrderInfo, escrow *pouch) (OrderResult, error) {
	result := OrderResult{
		Order:            info,
		FeeType:          plan.feeType,
		FeeCoin:          plan.feeCoin,
		Discount:         plan.discount,
		DeepRequired:     plan.deepRequired,
		DeepFromReserves: plan.deep.FromReserves,
		CoverageFee:      plan.coverageFee,
	}
	var errs []error

	fees, feesErr := r.orderFees(plan, info)
	if feesErr != nil {
		errs = append(errs, feesErr)
	}
	if fees.Taker > 0 {
		if err := r.collectTaker(escrow, plan.feeCoin, fees.Taker); err != nil {
			errs = append(errs, err)
		} else {
			result.ProtocolFees.Taker = fees.Taker
		}
	}
	if fees.Maker > 0 {
		if err := r.holdMaker(ctx, escrow, plan.feeCoin, fees.Maker, info); err != nil {
			errs = append(errs, err)
		} else {
			result.ProtocolFees.Maker = fees.Maker
		}
	}
	if info.Status.Resting() && result.ProtocolFees.Maker == 0 && (fees.Maker > 0 || feesErr != nil) {
		if err := r.withdrawUnheld(ctx, bm, info); err != nil {
			errs = append(errs, err)
		} else {
			result.Order.Status = domain.StatusCancelled
		}
	}

	surplus := escrow.Balance(plan.feeCoin)
	toWallet := min(surplus, plan.escrowFromWallet())
	if err := r.refund(escrow, wallet, plan.feeCoin, toWallet); err != nil {
		errs = append(errs, err)
	}
	if err := r.refund(escrow, bm, plan.feeCoin, escrow.Balance(plan.feeCoin)); err != nil {
		errs = append(errs, err)
	}
	result.Refunded = surplus - escrow.Balance(plan.feeCoin)

	err := errors.Join(errs...)
	if err != nil {
		r.logger.Error("protocol fee charge incomplete",
			"pool_id", info.PoolID,
			"balance_manager_id", info.BalanceManagerID,
			"order_id", info.OrderID,
			"error", err,
		)
	}
	return result, err
}

func (r *Router) orderFees(plan orderPlan, info domain.OrderInfo) (protocolfee.Fees, error) {
	ratios, err := protocolfee.OrderRatios(info)
	if err != nil {
		return protocolfee.Fees{}, err
	}
	fees, err := protocolfee.Calculate(plan.feeBase, plan.rates, ratios, plan.discount)
	if err != nil {
		return protocolfee.Fees{}, err
	}
	if fees.Total() > plan.maxFees.Total() {
		return protocolfee.Fees{}, domain.Wrapf(domain.ErrArithmeticOverflow, "fee %d above escrow %d", fees.Total(), plan.maxFees.Total())
	}
	return fees, nil
}

func (r *Router) collectTaker(escrow *pouch, coin domain.CoinType, amount uint64) error {
	c, err := escrow.Withdraw(coin, amount)
	if err != nil {
		return err
	}
	if err := r.vault.AddProtocolFee(c); err != nil {
		_ = escrow.Deposit(c)
		return err
	}
	return nil
}

func (r *Router) holdMaker(ctx context.Context, escrow *pouch, coin domain.CoinType, amount uint64, info domain.OrderInfo) error {
	c, err := escrow.Withdraw(coin, amount)
	if err != nil {
		return err
	}
	if err := r.ledger.Record(ctx, info, c); err != nil {
		_ = escrow.Deposit(c)
		return fmt.Errorf("hold maker fee for %s: %w", info.Key(), err)
	}
	return nil
}

// withdrawUnheld cancels the resting remainder of an order whose maker fee
// is not in the ledger. The unheld fee stays in escrow and is refunded.
func (r *Router) withdrawUnheld(ctx context.Context, bm domain.BalanceManager, info domain.OrderInfo) error {
	if err := r.engine.CancelOrder(ctx, bm, info.PoolID, info.OrderID); err != nil {
		r.logger.Error("unrecorded order left on book", "pool_id", info.PoolID, "order_id", info.OrderID, "error", err)
		return fmt.Errorf("withdraw %s: %w", info.Key(), err)
	}
	r.metrics.settlement("withdrawn")
	r.logger.Warn("order withdrawn, maker fee not held",
		"pool_id", info.PoolID,
		"balance_manager_id", info.BalanceManagerID,
		"order_id", info.OrderID,
		"executed", info.ExecutedQuantity,
	)
	return nil
}

func (r *Router) refund(escrow *pouch, to purse, coin domain.CoinType, amount uint64) error {
	if amount == 0 {
		return nil
	}
	c, err := escrow.Withdraw(coin, amount)
	if err != nil {
		return err
	}
	if err := to.Deposit(c); err != nil {
		_ = escrow.Deposit(c)
		return err
	}
	return nil
}

// executedNotional is the executed share of the order's quote value.
func executedNotional(quoteAmount uint64, info domain.OrderInfo) uint64 {
	if info.OriginalQuantity == 0 {
		return 0
	}
	n, err := fixedmath.MulDiv(quoteAmount, info.ExecutedQuantity, info.OriginalQuantity)
	if err != nil {
		return 0
	}
	return n
}

// Estimate prices an order without moving funds. bm and wallet may be nil,
// in which case the caller is assumed to hold nothing.
func (r *Router) Estimate(ctx context.Context, bm domain.BalanceManager, wallet domain.Wallet, req OrderRequest) (Estimate, error) {
	if req.Market {
		req.Price = 0
	}
	plan, err := r.buildPlan(ctx, bm, wallet, req)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		FeeType:          plan.feeType,
		PoolID:           plan.pool.ID,
		InputCoin:        plan.inputCoin,
		OrderAmount:      plan.orderAmount,
		DeepRequired:     plan.deepRequired,
		DeepFromReserves: plan.deep.FromReserves,
		Rate:             plan.rate,
		CoverageFee:      plan.coverageFee,
		EngineFee:        plan.engineFee,
		FeeCoin:          plan.feeCoin,
		MaxProtocolFee:   plan.maxFees.Total(),
		Discount:         plan.discount,
		DeepSufficient:   plan.deep.Sufficient,
		Sufficient:       plan.sufficient(),
	}, nil
}

// Estimate is the pre-trade view of an order's fees.
type Estimate struct {
	FeeType          protocolfee.FeeType `json:"fee_type"`
	PoolID           string              `json:"pool_id"`
	InputCoin        domain.CoinType     `json:"input_coin"`
	OrderAmount      uint64              `json:"order_amount,string"`
	DeepRequired     uint64              `json:"deep_required,string"`
	DeepFromReserves uint64              `json:"deep_from_reserves,string"`
	Rate             uint64              `json:"rate,string"`
	CoverageFee      uint64              `json:"coverage_fee,string"`
	EngineFee        uint64              `json:"engine_fee,string"`
	FeeCoin          domain.CoinType     `json:"fee_coin"`
	MaxProtocolFee   uint64              `json:"max_protocol_fee,string"`
	Discount         uint64              `json:"discount,string"`
	DeepSufficient   bool                `json:"deep_sufficient"`
	Sufficient       bool                `json:"sufficient"`
}
