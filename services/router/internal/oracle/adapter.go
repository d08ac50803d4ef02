// Package oracle prices the scarce token in the reference coin by combining an
// external USD feed pair with the exchange's own reference pool.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

const (
	// MaxQuoteAge is the oldest quote accepted relative to now.
	MaxQuoteAge = 60 * time.Second
	// confidenceRatio rejects quotes whose confidence exceeds 1/20 of the price.
	confidenceRatio = 20
	// decimalsAdjustment lifts the 9 digits of fixedmath.Div to the 12 digits of a rate.
	decimalsAdjustment = 3
)

// Config names the feeds and the reference pool used for pricing.
type Config struct {
	DeepUSDFeedID      string `json:"deep_usd_feed_id" mapstructure:"deep_usd_feed_id"`
	ReferenceUSDFeedID string `json:"reference_usd_feed_id" mapstructure:"reference_usd_feed_id"`
	ReferencePoolID    string `json:"reference_pool_id" mapstructure:"reference_pool_id"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DeepUSDFeedID) == "" {
		return fmt.Errorf("deep usd feed id is required")
	}
	if strings.TrimSpace(c.ReferenceUSDFeedID) == "" {
		return fmt.Errorf("reference usd feed id is required")
	}
	if strings.TrimSpace(c.ReferencePoolID) == "" {
		return fmt.Errorf("reference pool id is required")
	}
	return nil
}

// ReferencePool reads the scarce/reference price straight from the order book.
type ReferencePool interface {
	MidPrice(ctx context.Context, poolID string) (uint64, error)
}

type FailureMetrics interface {
	IncOracleFailure(reason string)
}

// ValidateQuote rejects non-positive, low-confidence and stale quotes. A quote
// published after now counts as fresh.
func ValidateQuote(q domain.Quote, now time.Time) error {
	if q.Price <= 0 {
		return domain.Wrapf(domain.ErrOraclePriceNonPositive, "feed %s price %d", q.FeedID, q.Price)
	}
	if q.Expo > 0 {
		return domain.Wrapf(domain.ErrOracleExponent, "feed %s expo %d", q.FeedID, q.Expo)
	}
	if q.Conf > math.MaxUint64/confidenceRatio || q.Conf*confidenceRatio > uint64(q.Price) {
		return domain.Wrapf(domain.ErrOracleLowConfidence, "feed %s conf %d price %d", q.FeedID, q.Conf, q.Price)
	}
	if now.After(q.PublishTime) && now.Sub(q.PublishTime) > MaxQuoteAge {
		return domain.Wrapf(domain.ErrOracleStale, "feed %s published %s", q.FeedID, q.PublishTime.UTC().Format(time.RFC3339))
	}
	return nil
}

// OracleRate divides the two USD quotes into reference coin per scarce token
// at 12 fractional digits. Exponents are handled as non-negative magnitudes and
// the residual power of ten lands on whichever side keeps it non-negative.
func OracleRate(deep, reference domain.Quote) (uint64, error) {
	if deep.Expo > 0 || reference.Expo > 0 {
		return 0, domain.ErrOracleExponent
	}
	if deep.Price <= 0 || reference.Price <= 0 {
		return 0, domain.ErrOraclePriceNonPositive
	}
	deepExpo := uint64(-int64(deep.Expo))
	refExpo := uint64(-int64(reference.Expo))
	deepPrice := uint64(deep.Price)
	refPrice := uint64(reference.Price)

	if refExpo+decimalsAdjustment >= deepExpo {
		mult, err := fixedmath.Pow10(refExpo + decimalsAdjustment - deepExpo)
		if err != nil {
			return 0, err
		}
		num, err := fixedmath.MulDiv(deepPrice, mult, 1)
		if err != nil {
			return 0, err
		}
		return fixedmath.Div(num, refPrice)
	}

	mult, err := fixedmath.Pow10(deepExpo - refExpo - decimalsAdjustment)
	if err != nil {
		return 0, err
	}
	den, err := fixedmath.MulDiv(refPrice, mult, 1)
	if err != nil {
		return 0, err
	}
	return fixedmath.Div(deepPrice, den)
}

// CombineRates picks the higher rate so suppressing one source never lowers the price.
func CombineRates(oracleRate, poolRate uint64) uint64 {
	if oracleRate > poolRate {
		return oracleRate
	}
	return poolRate
}

// Adapter produces the manipulation-resistant reference-per-deep rate. It
// never substitutes a default: any unusable input is returned as an error.
type Adapter struct {
	feed    domain.PriceFeed
	pool    ReferencePool
	logger  *slog.Logger
	metrics FailureMetrics
	now     func() time.Time

	mu  sync.RWMutex
	cfg Config
}

func NewAdapter(feed domain.PriceFeed, pool ReferencePool, cfg Config, logger *slog.Logger, metrics FailureMetrics) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		feed:    feed,
		pool:    pool,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		cfg:     cfg,
	}
}

// WithClock overrides the time source.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

func (a *Adapter) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *Adapter) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return nil
}

// ReferencePerDeep returns max(oracle rate, reference pool rate).
func (a *Adapter) ReferencePerDeep(ctx context.Context) (uint64, error) {
	cfg := a.Config()
	now := a.now()

	deepQuote, err := a.quote(ctx, cfg.DeepUSDFeedID, now)
	if err != nil {
		return 0, err
	}
	refQuote, err := a.quote(ctx, cfg.ReferenceUSDFeedID, now)
	if err != nil {
		return 0, err
	}

	oracleRate, err := OracleRate(deepQuote, refQuote)
	if err != nil {
		a.fail("oracle_rate", err)
		return 0, err
	}

	poolRate, err := a.poolRate(ctx, cfg.ReferencePoolID)
	if err != nil {
		return 0, err
	}

	rate := CombineRates(oracleRate, poolRate)
	if rate == 0 {
		a.fail("zero_rate", domain.ErrZeroExchangeRate)
		return 0, domain.ErrZeroExchangeRate
	}
	a.logger.Debug("reference per deep priced", "oracle_rate", oracleRate, "pool_rate", poolRate, "rate", rate)
	return rate, nil
}

// PoolReferencePerDeep reads the reference pool alone. It converts protocol
// fees on orders that draw nothing from the reserve, so no feed is queried.
func (a *Adapter) PoolReferencePerDeep(ctx context.Context) (uint64, error) {
	rate, err := a.poolRate(ctx, a.Config().ReferencePoolID)
	if err != nil {
		return 0, err
	}
	if rate == 0 {
		a.fail("zero_rate", domain.ErrZeroExchangeRate)
		return 0, domain.ErrZeroExchangeRate
	}
	return rate, nil
}

func (a *Adapter) poolRate(ctx context.Context, poolID string) (uint64, error) {
	rate, err := a.pool.MidPrice(ctx, poolID)
	if err != nil {
		a.fail("reference_pool", err)
		return 0, domain.Wrapf(domain.ErrReferencePoolPrice, "pool %s: %v", poolID, err)
	}
	return rate, nil
}

func (a *Adapter) quote(ctx context.Context, feedID string, now time.Time) (domain.Quote, error) {
	q, err := a.feed.Quote(ctx, feedID)
	if err != nil {
		a.fail("unavailable", err)
		return domain.Quote{}, domain.Wrapf(domain.ErrOracleUnavailable, "feed %s: %v", feedID, err)
	}
	if q.FeedID != "" && !sameFeed(q.FeedID, feedID) {
		a.fail("feed_mismatch", domain.ErrOracleFeedMismatch)
		return domain.Quote{}, domain.Wrapf(domain.ErrOracleFeedMismatch, "want %s got %s", feedID, q.FeedID)
	}
	if err := ValidateQuote(q, now); err != nil {
		a.fail(string(reasonOf(err)), err)
		return domain.Quote{}, err
	}
	return q, nil
}

func (a *Adapter) fail(reason string, err error) {
	a.logger.Warn("oracle pricing failed", "reason", reason, "error", err)
	if a.metrics != nil {
		a.metrics.IncOracleFailure(reason)
	}
}

type failureReason string

func reasonOf(err error) failureReason {
	switch domain.CodeOf(err) {
	case domain.ErrOraclePriceNonPositive.Code:
		return "non_positive"
	case domain.ErrOracleLowConfidence.Code:
		return "low_confidence"
	case domain.ErrOracleStale.Code:
		return "stale"
	case domain.ErrOracleExponent.Code:
		return "exponent"
	default:
		return "invalid"
	}
}

func sameFeed(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "0x"), strings.TrimPrefix(b, "0x"))
}
