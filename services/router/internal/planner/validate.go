package planner

import (
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

// MaxSlippage is 100% in billionths.
const MaxSlippage = fixedmath.FloatScaling

// ValidateOrderSize checks quantity against the pool's minimum and lot size
// and, for limit orders, price against the tick size.
func ValidateOrderSize(params domain.BookParams, quantity, price uint64, isLimit bool) error {
	if quantity < params.MinSize {
		return domain.Wrapf(domain.ErrOrderBelowMinimum, "quantity %d < min %d", quantity, params.MinSize)
	}
	if params.LotSize > 0 && quantity%params.LotSize != 0 {
		return domain.Wrapf(domain.ErrQuantityNotLotMultiple, "quantity %d lot %d", quantity, params.LotSize)
	}
	if !isLimit {
		return nil
	}
	if price == 0 {
		return domain.Wrapf(domain.ErrInvalidOrder, "price must be positive")
	}
	if params.TickSize > 0 && price%params.TickSize != 0 {
		return domain.Wrapf(domain.ErrPriceNotTickMultiple, "price %d tick %d", price, params.TickSize)
	}
	return nil
}

// ValidateOrderOptions rejects orders that could leave a fee record behind
// without the router noticing: finite expirations and self-match handling
// that cancels the caller's resting order.
func ValidateOrderOptions(expireTimestamp uint64, selfMatching domain.SelfMatchingOption) error {
	if expireTimestamp != domain.MaxTimestamp {
		return domain.Wrapf(domain.ErrUnsupportedExpiration, "expire_timestamp %d", expireTimestamp)
	}
	if selfMatching == domain.CancelMaker {
		return domain.ErrUnsupportedSelfMatching
	}
	if selfMatching > domain.CancelMaker {
		return domain.Wrapf(domain.ErrUnsupportedSelfMatching, "option %d", selfMatching)
	}
	return nil
}

func ValidateSlippage(slippage uint64) error {
	if slippage > MaxSlippage {
		return domain.Wrapf(domain.ErrInvalidSlippage, "%d > %d", slippage, MaxSlippage)
	}
	return nil
}

// CheckSlippage fails with base when actual exceeds estimate by more than
// slippage.
func CheckSlippage(actual, estimate, slippage uint64, base *domain.Error) error {
	if err := ValidateSlippage(slippage); err != nil {
		return err
	}
	ceiling, err := fixedmath.ApplySlippage(estimate, slippage)
	if err != nil {
		return err
	}
	if actual > ceiling {
		return domain.Wrapf(base, "actual %d, estimate %d, ceiling %d", actual, estimate, ceiling)
	}
	return nil
}
