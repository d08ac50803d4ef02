package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

const saveTimeout = 3 * time.Second

// BalanceStore keeps the vault state across restarts. LoadVault reports
// false when nothing was saved yet.
type BalanceStore interface {
	LoadVault(ctx context.Context) (Balances, bool, error)
	SaveVault(ctx context.Context, b Balances) error
}

// Restore loads saved state from store, if any, and writes every later
// mutation through to it. Without a saved state the current balances are
// written once so the store starts in sync. It reports whether saved state
// was found.
func (v *Vault) Restore(ctx context.Context, store BalanceStore) (bool, error) {
	saved, ok, err := store.LoadVault(ctx)
	if err != nil {
		return false, fmt.Errorf("load vault: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if ok {
		v.applyLocked(saved)
		// The running version stays usable unless it was revoked for good.
		if _, revoked := v.disabled[v.version]; !revoked {
			v.allowed[v.version] = struct{}{}
		}
	} else if err := store.SaveVault(ctx, v.snapshotLocked()); err != nil {
		return false, fmt.Errorf("save vault: %w", err)
	}
	v.store = store
	v.logger.Info("vault restored", "from_store", ok, "deep_reserves", v.reserve)
	return ok, nil
}

// mutate runs fn under the write lock. When a store is attached the new
// state is saved before the lock is released and a failed save puts the
// previous state back.
func (v *Vault) mutate(fn func() error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.store == nil {
		return fn()
	}
	before := v.snapshotLocked()
	if err := fn(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := v.store.SaveVault(ctx, v.snapshotLocked()); err != nil {
		v.applyLocked(before)
		v.logger.Error("vault save failed, change reverted", "error", err)
		return fmt.Errorf("save vault: %w", err)
	}
	return nil
}

func (v *Vault) snapshotLocked() Balances {
	out := Balances{
		DeepReserves: v.reserve,
		Coverage:     make(map[domain.CoinType]uint64, len(v.coverage)),
		Protocol:     make(map[domain.CoinType]uint64, len(v.protocol)),
		Allowed:      sortedVersions(v.allowed),
		Disabled:     sortedVersions(v.disabled),
	}
	for k, val := range v.coverage {
		out.Coverage[k] = val
	}
	for k, val := range v.protocol {
		out.Protocol[k] = val
	}
	return out
}

// applyLocked overwrites the state with b. Maps are refilled in place since
// handles hold references to the bucket maps.
func (v *Vault) applyLocked(b Balances) {
	v.reserve = b.DeepReserves
	refill(v.coverage, b.Coverage)
	refill(v.protocol, b.Protocol)
	v.allowed = versionSet(b.Allowed)
	v.disabled = versionSet(b.Disabled)
}

func refill(dst, src map[domain.CoinType]uint64) {
	for k := range dst {
		delete(dst, k)
	}
	for k, val := range src {
		if val > 0 {
			dst[k] = val
		}
	}
}

func versionSet(versions []uint64) map[uint64]struct{} {
	out := make(map[uint64]struct{}, len(versions))
	for _, ver := range versions {
		out[ver] = struct{}{}
	}
	return out
}
