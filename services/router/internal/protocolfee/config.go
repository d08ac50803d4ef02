package protocolfee

import (
	"sync"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

// FeeType selects what a protocol fee is denominated in.
type FeeType string

const (
	// FeeTypeCoverage charges in the reference coin on top of a DEEP-paid order.
	FeeTypeCoverage FeeType = "coverage"
	// FeeTypeInput charges in the order's own input coin.
	FeeTypeInput FeeType = "input"
)

func (t FeeType) Valid() bool {
	return t == FeeTypeCoverage || t == FeeTypeInput
}

// Rates are taker and maker rates plus the largest discount a pool grants,
// all in billionths.
type Rates struct {
	TakerRate   uint64 `json:"taker_rate" mapstructure:"taker_rate"`
	MakerRate   uint64 `json:"maker_rate" mapstructure:"maker_rate"`
	MaxDiscount uint64 `json:"max_discount" mapstructure:"max_discount"`
}

// Maximum rates accepted by Validate.
const (
	MaxTakerRate uint64 = 100_000_000
	MaxMakerRate uint64 = 100_000_000
)

func (r Rates) Validate() error {
	if r.TakerRate > MaxTakerRate {
		return domain.Wrapf(domain.ErrInvalidFeeRate, "taker rate %d", r.TakerRate)
	}
	if r.MakerRate > MaxMakerRate {
		return domain.Wrapf(domain.ErrInvalidFeeRate, "maker rate %d", r.MakerRate)
	}
	if r.MaxDiscount > fixedmath.FloatScaling {
		return domain.Wrapf(domain.ErrInvalidDiscount, "max discount %d", r.MaxDiscount)
	}
	return nil
}

// DefaultRates applies to any pool without an override.
var DefaultRates = map[FeeType]Rates{
	FeeTypeCoverage: {TakerRate: 1_000_000, MakerRate: 500_000, MaxDiscount: 250_000_000},
	FeeTypeInput:    {TakerRate: 1_000_000, MakerRate: 500_000, MaxDiscount: 0},
}

// Config holds default and per-pool rates for each fee type.
type Config struct {
	mu       sync.RWMutex
	defaults map[FeeType]Rates
	pools    map[FeeType]map[string]Rates
}

func NewConfig(defaults map[FeeType]Rates) (*Config, error) {
	c := &Config{
		defaults: make(map[FeeType]Rates, 2),
		pools:    make(map[FeeType]map[string]Rates, 2),
	}
	for _, t := range []FeeType{FeeTypeCoverage, FeeTypeInput} {
		rates, ok := defaults[t]
		if !ok {
			rates = DefaultRates[t]
		}
		if err := rates.Validate(); err != nil {
			return nil, err
		}
		c.defaults[t] = rates
		c.pools[t] = make(map[string]Rates)
	}
	return c, nil
}

// Rates returns the pool's override or the default for feeType.
func (c *Config) Rates(feeType FeeType, poolID string) Rates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.pools[feeType][poolID]; ok {
		return r
	}
	return c.defaults[feeType]
}

func (c *Config) SetDefault(feeType FeeType, rates Rates) error {
	if !feeType.Valid() {
		return domain.Wrapf(domain.ErrInvalidFeeRate, "unknown fee type %q", feeType)
	}
	if err := rates.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults[feeType] = rates
	return nil
}

func (c *Config) SetPool(feeType FeeType, poolID string, rates Rates) error {
	if !feeType.Valid() {
		return domain.Wrapf(domain.ErrInvalidFeeRate, "unknown fee type %q", feeType)
	}
	if err := rates.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[feeType][poolID] = rates
	return nil
}

// ClearPool drops a pool override so the default applies again.
func (c *Config) ClearPool(feeType FeeType, poolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pools[feeType], poolID)
}
