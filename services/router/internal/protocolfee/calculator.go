// Package protocolfee computes the router's own fee on top of the matching
// engine's fee, split by how much of an order executed immediately.
package protocolfee

import (
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/planner"
)

// Ratios are the taker and maker shares of an order in billionths.
type Ratios struct {
	Taker uint64
	Maker uint64
}

// OrderRatios derives taker and maker shares from placement output. The
// executed share is taker for every status. The unexecuted share is maker
// only while the order still rests on the book.
func OrderRatios(info domain.OrderInfo) (Ratios, error) {
	if info.OriginalQuantity == 0 {
		return Ratios{}, domain.Wrapf(domain.ErrInvalidOrder, "zero original quantity")
	}
	if info.ExecutedQuantity > info.OriginalQuantity {
		return Ratios{}, domain.Wrapf(domain.ErrInvalidOrder, "executed %d > original %d", info.ExecutedQuantity, info.OriginalQuantity)
	}
	taker, err := fixedmath.Div(info.ExecutedQuantity, info.OriginalQuantity)
	if err != nil {
		return Ratios{}, err
	}
	var maker uint64
	if info.Status.Resting() {
		maker, err = fixedmath.Div(info.OriginalQuantity-info.ExecutedQuantity, info.OriginalQuantity)
		if err != nil {
			return Ratios{}, err
		}
	}
	return Ratios{Taker: taker, Maker: maker}, nil
}

// Fees is a protocol fee split into its immediately-owed taker part and the
// maker part that is held until the order settles.
type Fees struct {
	Taker uint64
	Maker uint64
}

func (f Fees) Total() uint64 {
	return f.Taker + f.Maker
}

// Calculate returns the protocol fee for orderAmount. discount is applied to
// both rates before they touch the amount.
func Calculate(orderAmount uint64, rates Rates, ratios Ratios, discount uint64) (Fees, error) {
	if discount > rates.MaxDiscount {
		return Fees{}, domain.Wrapf(domain.ErrInvalidDiscount, "discount %d > max %d", discount, rates.MaxDiscount)
	}
	if orderAmount == 0 || (ratios.Taker == 0 && ratios.Maker == 0) {
		return Fees{}, nil
	}
	keep := fixedmath.FloatScaling - discount
	takerRate, err := fixedmath.Mul(rates.TakerRate, keep)
	if err != nil {
		return Fees{}, err
	}
	makerRate, err := fixedmath.Mul(rates.MakerRate, keep)
	if err != nil {
		return Fees{}, err
	}
	taker, err := share(orderAmount, ratios.Taker, takerRate)
	if err != nil {
		return Fees{}, err
	}
	maker, err := share(orderAmount, ratios.Maker, makerRate)
	if err != nil {
		return Fees{}, err
	}
	if _, err := fixedmath.Add(taker, maker); err != nil {
		return Fees{}, err
	}
	return Fees{Taker: taker, Maker: maker}, nil
}

func share(amount, ratio, rate uint64) (uint64, error) {
	if ratio == 0 || rate == 0 {
		return 0, nil
	}
	part, err := fixedmath.Mul(amount, ratio)
	if err != nil {
		return 0, err
	}
	return fixedmath.Mul(part, rate)
}

// MaxFees is the largest fee the order could owe: everything at the higher
// of the two rates.
func MaxFees(orderAmount uint64, rates Rates, discount uint64) (Fees, error) {
	taker, err := Calculate(orderAmount, rates, Ratios{Taker: fixedmath.FloatScaling}, discount)
	if err != nil {
		return Fees{}, err
	}
	maker, err := Calculate(orderAmount, rates, Ratios{Maker: fixedmath.FloatScaling}, discount)
	if err != nil {
		return Fees{}, err
	}
	if maker.Total() > taker.Total() {
		return maker, nil
	}
	return taker, nil
}

// DeepFundedDiscount scales maxDiscount by the share of DEEP the user
// supplied. Orders that need no DEEP get the full discount.
func DeepFundedDiscount(maxDiscount, deepRequired, fromReserves uint64) (uint64, error) {
	if deepRequired == 0 {
		return maxDiscount, nil
	}
	selfFunded := deepRequired - min(fromReserves, deepRequired)
	return fixedmath.MulDiv(maxDiscount, selfFunded, deepRequired)
}

// CombineDiscounts picks the better of the DEEP-funding and volume discounts
// without exceeding the pool maximum.
func CombineDiscounts(maxDiscount, deepDiscount, tierDiscount uint64) uint64 {
	return min(maxDiscount, max(deepDiscount, tierDiscount))
}

// CollectionPlan sources taker then maker fees, each wallet first.
type CollectionPlan struct {
	Fees            Fees
	TakerFromWallet uint64
	TakerFromBM     uint64
	MakerFromWallet uint64
	MakerFromBM     uint64
	Sufficient      bool
}

func PlanCollection(fees Fees, inWallet, inBalanceManager uint64) CollectionPlan {
	if fees.Total() == 0 {
		return CollectionPlan{Fees: fees, Sufficient: true}
	}
	total := planner.PlanWalletFirst(fees.Total(), inWallet, inBalanceManager)
	if !total.Sufficient {
		return CollectionPlan{Fees: fees}
	}
	taker := planner.PlanWalletFirst(fees.Taker, inWallet, inBalanceManager)
	maker := planner.PlanWalletFirst(fees.Maker, inWallet-taker.FromWallet, inBalanceManager-taker.FromBalanceManager)
	return CollectionPlan{
		Fees:            fees,
		TakerFromWallet: taker.FromWallet,
		TakerFromBM:     taker.FromBalanceManager,
		MakerFromWallet: maker.FromWallet,
		MakerFromBM:     maker.FromBalanceManager,
		Sufficient:      true,
	}
}
