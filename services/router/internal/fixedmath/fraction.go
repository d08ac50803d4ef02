package fixedmath

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseFraction converts a decimal fraction such as "0.0025" to billionths.
// Digits beyond nine decimal places are truncated. Empty input is zero.
func ParseFraction(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, errors.New("fraction must not be negative")
	}
	scaled := d.Mul(decimal.NewFromInt(int64(FloatScaling))).Truncate(0)
	if !scaled.BigInt().IsUint64() {
		return 0, errors.New("fraction out of range")
	}
	return scaled.BigInt().Uint64(), nil
}

// FormatFraction renders billionths as a decimal string.
func FormatFraction(ppb uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(ppb), -9).String()
}
