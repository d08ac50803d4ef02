// Package planner decides where the scarce fee token, the coverage fee and the
// order's input coin come from. Every function here is pure: plans are built
// and checked before any balance is touched.
package planner

import (
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

// DeepPlan splits an order's DEEP requirement across the user's balance
// manager, the user's wallet and the shared reserve.
type DeepPlan struct {
	Required           uint64
	FromBalanceManager uint64
	FromWallet         uint64
	FromReserves       uint64
	Sufficient         bool
}

// UsesReserves reports whether the plan draws on the shared reserve.
func (p DeepPlan) UsesReserves() bool {
	return p.FromReserves > 0
}

// PlanDeep builds the DEEP sourcing plan. Custodial funds are used first,
// then the wallet, and only the remaining shortfall comes from the reserve.
// An infeasible plan has every source set to zero.
func PlanDeep(whitelisted bool, required, inBalanceManager, inWallet, inReserves uint64) DeepPlan {
	if whitelisted || required == 0 {
		return DeepPlan{Sufficient: true}
	}

	fromBM := min(inBalanceManager, required)
	rest := required - fromBM
	fromWallet := min(inWallet, rest)
	rest -= fromWallet
	if rest == 0 {
		return DeepPlan{
			Required:           required,
			FromBalanceManager: fromBM,
			FromWallet:         fromWallet,
			Sufficient:         true,
		}
	}

	// Any reserve draw takes the whole wallet so the reserve only covers
	// what the user could not.
	if inReserves < rest {
		return DeepPlan{Required: required}
	}
	return DeepPlan{
		Required:           required,
		FromBalanceManager: fromBM,
		FromWallet:         fromWallet,
		FromReserves:       rest,
		Sufficient:         true,
	}
}

// CoverageFee is the reference-coin price of drawing fromReserves DEEP at
// rate reference units per DEEP unit (billionths).
func CoverageFee(whitelisted bool, fromReserves, rate uint64) (uint64, error) {
	if whitelisted || fromReserves == 0 {
		return 0, nil
	}
	fee, err := fixedmath.Mul(fromReserves, rate)
	if err != nil {
		return 0, err
	}
	if fee == 0 {
		return 0, domain.Wrapf(domain.ErrCoverageFeeZero, "reserve draw %d at rate %d", fromReserves, rate)
	}
	return fee, nil
}

// FundingPlan takes an amount from the wallet first and the balance
// manager second.
type FundingPlan struct {
	Amount             uint64
	FromWallet         uint64
	FromBalanceManager uint64
	Sufficient         bool
}

// PlanWalletFirst builds a wallet-first funding plan. It is used for the
// coverage fee and protocol fees.
func PlanWalletFirst(amount, inWallet, inBalanceManager uint64) FundingPlan {
	if amount == 0 {
		return FundingPlan{Sufficient: true}
	}
	fromWallet := min(inWallet, amount)
	rest := amount - fromWallet
	if inBalanceManager < rest {
		return FundingPlan{Amount: amount}
	}
	return FundingPlan{
		Amount:             amount,
		FromWallet:         fromWallet,
		FromBalanceManager: rest,
		Sufficient:         true,
	}
}

// PlanCoverageFee is the funding plan for a coverage fee.
func PlanCoverageFee(fee, inWallet, inBalanceManager uint64) FundingPlan {
	return PlanWalletFirst(fee, inWallet, inBalanceManager)
}
