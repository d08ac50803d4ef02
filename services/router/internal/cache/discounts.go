package cache

import (
	"context"
	"time"
)

// VolumeStore reports an owner's traded quote notional since a point in time.
type VolumeStore interface {
	GetOwnerVolume(ctx context.Context, owner string, since time.Time) (string, error)
}

// Discounts resolves an owner's tier discount from their trailing volume.
type Discounts struct {
	cache  *TierCache
	volume VolumeStore
	window time.Duration
	now    func() time.Time
}

const DefaultVolumeWindow = 30 * 24 * time.Hour

func NewDiscounts(cache *TierCache, volume VolumeStore, window time.Duration) *Discounts {
	if window <= 0 {
		window = DefaultVolumeWindow
	}
	return &Discounts{cache: cache, volume: volume, window: window, now: time.Now}
}

// Discount returns zero when no tier matches.
func (d *Discounts) Discount(ctx context.Context, owner string) (uint64, error) {
	if d.cache.Size() == 0 {
		return 0, nil
	}
	volume, err := d.volume.GetOwnerVolume(ctx, owner, d.now().Add(-d.window))
	if err != nil {
		return 0, err
	}
	tier, ok := d.cache.Match(volume)
	if !ok {
		return 0, nil
	}
	return tier.DiscountRate, nil
}
