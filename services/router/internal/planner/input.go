package planner

import (
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

// FeePenaltyMultiplier scales the matching engine's taker rate when its fee
// is paid in the input coin instead of DEEP.
const FeePenaltyMultiplier uint64 = 1_250_000_000

// InputPlan tops up the balance manager with the order's input coin. What is
// already in custody is used first; only the shortfall leaves the wallet.
type InputPlan struct {
	Required   uint64
	FromWallet uint64
	Sufficient bool
}

func PlanInputCoinDeposit(required, inBalanceManager, inWallet uint64) InputPlan {
	if inBalanceManager >= required {
		return InputPlan{Required: required, Sufficient: true}
	}
	shortfall := required - inBalanceManager
	if inWallet < shortfall {
		return InputPlan{Required: required}
	}
	return InputPlan{Required: required, FromWallet: shortfall, Sufficient: true}
}

// OrderAmount is the input-coin size of an order: the base quantity for asks
// and quantity*price for bids.
func OrderAmount(quantity, price uint64, isBid bool) (uint64, error) {
	if !isBid {
		return quantity, nil
	}
	return fixedmath.Mul(quantity, price)
}

// InputCoinEngineFee is the fee the matching engine takes in the input coin
// when DEEP is not used.
func InputCoinEngineFee(orderAmount, takerRate uint64) (uint64, error) {
	rate, err := fixedmath.Mul(takerRate, FeePenaltyMultiplier)
	if err != nil {
		return 0, err
	}
	return fixedmath.Mul(orderAmount, rate)
}
