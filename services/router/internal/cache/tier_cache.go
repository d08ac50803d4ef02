package cache

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/storage"
	"github.com/shopspring/decimal"
)

type TierStore interface {
	GetAllFeeTiers(ctx context.Context) ([]storage.FeeTier, error)
}

type RefreshMetrics interface {
	ObserveRefresh(duration time.Duration)
	SetCacheSize(size int)
	IncRefreshError()
}

type tierLevel struct {
	min  decimal.Decimal
	tier storage.FeeTier
}

// TierCache holds volume tiers ordered from the highest minimum volume down.
// Two tiers with numerically equal minimums collapse into the later one.
type TierCache struct {
	mu     sync.RWMutex
	levels []tierLevel
}

func NewTierCache() *TierCache {
	return &TierCache{}
}

// Load replaces the cached tiers. Tiers with an unparsable volume or a
// discount above 100% are skipped.
func (c *TierCache) Load(ctx context.Context, store TierStore) error {
	tiers, err := store.GetAllFeeTiers(ctx)
	if err != nil {
		return err
	}
	var levels []tierLevel
	for _, tier := range tiers {
		if tier.DiscountRate > maxDiscount {
			continue
		}
		levels, _ = insertLevel(levels, tier)
	}

	c.mu.Lock()
	c.levels = levels
	c.mu.Unlock()
	return nil
}

// Put adds or replaces the tier whose minimum volume equals tier.MinVolume.
func (c *TierCache) Put(tier storage.FeeTier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ok bool
	c.levels, ok = insertLevel(c.levels, tier)
	return ok
}

// Match returns the tier with the highest minimum not above volume.
func (c *TierCache) Match(volume string) (storage.FeeTier, bool) {
	vol, ok := parseVolume(volume)
	if !ok {
		return storage.FeeTier{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.Search(len(c.levels), func(i int) bool {
		return c.levels[i].min.LessThanOrEqual(vol)
	})
	if i == len(c.levels) {
		return storage.FeeTier{}, false
	}
	return c.levels[i].tier, true
}

func (c *TierCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.levels)
}

// StartAutoRefresh reloads the tiers every interval until ctx ends. A failed
// reload keeps the previous tiers.
func (c *TierCache) StartAutoRefresh(ctx context.Context, store TierStore, interval time.Duration, metrics RefreshMetrics, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		logger.Warn("fee tier refresh disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refresh(ctx, store, metrics, logger)
			}
		}
	}()
}

func (c *TierCache) refresh(ctx context.Context, store TierStore, metrics RefreshMetrics, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := c.Load(ctx, store); err != nil {
		logger.Error("fee tier refresh failed", "error", err)
		if metrics != nil {
			metrics.IncRefreshError()
		}
		return
	}
	size := c.Size()
	if metrics != nil {
		metrics.ObserveRefresh(time.Since(start))
		metrics.SetCacheSize(size)
	}
	logger.Debug("fee tier cache refreshed", "tiers", size)
}

const maxDiscount = 1_000_000_000

// insertLevel keeps levels sorted descending by minimum volume and
// normalizes tier.MinVolume.
func insertLevel(levels []tierLevel, tier storage.FeeTier) ([]tierLevel, bool) {
	vol, ok := parseVolume(tier.MinVolume)
	if !ok {
		return levels, false
	}
	tier.MinVolume = vol.String()

	i := sort.Search(len(levels), func(i int) bool {
		return levels[i].min.LessThanOrEqual(vol)
	})
	if i < len(levels) && levels[i].min.Equal(vol) {
		levels[i].tier = tier
		return levels, true
	}
	levels = append(levels, tierLevel{})
	copy(levels[i+1:], levels[i:])
	levels[i] = tierLevel{min: vol, tier: tier}
	return levels, true
}

func parseVolume(s string) (decimal.Decimal, bool) {
	vol, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || vol.IsNegative() {
		return decimal.Decimal{}, false
	}
	return vol, true
}
