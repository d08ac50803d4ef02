package domain

import "math"

// CoinType tags a fungible asset, e.g. "DEEP" or "0x2::sui::SUI".
type CoinType string

// Coin is a typed amount moved between wallet, balance manager, vault and ledger.
type Coin struct {
	Type  CoinType
	Value uint64
}

func NewCoin(t CoinType, value uint64) Coin {
	return Coin{Type: t, Value: value}
}

func ZeroCoin(t CoinType) Coin {
	return Coin{Type: t}
}

func (c Coin) IsZero() bool {
	return c.Value == 0
}

// Split removes amount from c and returns it as a new coin.
func (c *Coin) Split(amount uint64) (Coin, error) {
	if amount > c.Value {
		return Coin{}, Wrapf(ErrInsufficientBalance, "split %d from %d %s", amount, c.Value, c.Type)
	}
	c.Value -= amount
	return Coin{Type: c.Type, Value: amount}, nil
}

// Join merges other into c. Types must match; a zero coin of any type is
// accepted and an untyped empty c adopts the type of other.
func (c *Coin) Join(other Coin) error {
	if other.Value == 0 {
		return nil
	}
	if c.Type == "" && c.Value == 0 {
		c.Type = other.Type
	}
	if c.Type != other.Type {
		return Wrapf(ErrCoinTypeMismatch, "join %s into %s", other.Type, c.Type)
	}
	if other.Value > math.MaxUint64-c.Value {
		return ErrArithmeticOverflow
	}
	c.Value += other.Value
	return nil
}
