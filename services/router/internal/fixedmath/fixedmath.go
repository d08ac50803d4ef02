// Package fixedmath implements the billionths fixed-point arithmetic used for
// every fee, rate and ratio. All results truncate toward zero.
package fixedmath

import (
	"math"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/holiman/uint256"
)

// FloatScaling is 1.0 in billionths.
const FloatScaling uint64 = 1_000_000_000

// MulDiv returns floor(a*b/c) computed with a 256-bit intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, domain.Wrapf(domain.ErrArithmeticOverflow, "division by zero")
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(c))
	if !x.IsUint64() {
		return 0, domain.ErrArithmeticOverflow
	}
	return x.Uint64(), nil
}

// Mul multiplies a by a billionths-scaled b.
func Mul(a, b uint64) (uint64, error) {
	return MulDiv(a, b, FloatScaling)
}

// Div returns a/b as a billionths-scaled value.
func Div(a, b uint64) (uint64, error) {
	return MulDiv(a, FloatScaling, b)
}

// Pow10 returns 10^n.
func Pow10(n uint64) (uint64, error) {
	if n > 19 {
		return 0, domain.Wrapf(domain.ErrArithmeticOverflow, "10^%d", n)
	}
	out := uint64(1)
	for i := uint64(0); i < n; i++ {
		out *= 10
	}
	return out, nil
}

// Add returns a+b or an overflow error.
func Add(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, domain.ErrArithmeticOverflow
	}
	return a + b, nil
}

// ApplySlippage returns estimate*(1+slippage) with slippage in billionths.
func ApplySlippage(estimate, slippage uint64) (uint64, error) {
	extra, err := Mul(estimate, slippage)
	if err != nil {
		return 0, err
	}
	return Add(estimate, extra)
}
