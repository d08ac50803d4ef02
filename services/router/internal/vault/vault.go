// Package vault is the shared root holding the DEEP reserve and the fee
// buckets collected by the router.
package vault

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
)

// CurrentVersion is the version of the code mutating the vault.
const CurrentVersion uint64 = 1

// Vault state is guarded by one mutex. Every mutator checks the running
// version against the allowed set before it touches a balance.
type Vault struct {
	mu       sync.RWMutex
	deepType domain.CoinType
	version  uint64
	reserve  uint64
	coverage map[domain.CoinType]uint64
	protocol map[domain.CoinType]uint64
	allowed  map[uint64]struct{}
	disabled map[uint64]struct{}
	store    BalanceStore
	logger   *slog.Logger
}

// New creates a vault with CurrentVersion enabled.
func New(deepType domain.CoinType, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		deepType: deepType,
		version:  CurrentVersion,
		coverage: make(map[domain.CoinType]uint64),
		protocol: make(map[domain.CoinType]uint64),
		allowed:  map[uint64]struct{}{CurrentVersion: {}},
		disabled: make(map[uint64]struct{}),
		logger:   logger,
	}
}

// WithVersion returns a view of the vault that mutates as the given code
// version. It shares state with v.
func (v *Vault) WithVersion(version uint64) *Handle {
	return &Handle{vault: v, version: version}
}

func (v *Vault) DeepType() domain.CoinType {
	return v.deepType
}

func (v *Vault) checkVersionLocked(version uint64) error {
	if _, ok := v.disabled[version]; ok {
		return domain.Wrapf(domain.ErrVersionDisabled, "version %d", version)
	}
	if _, ok := v.allowed[version]; !ok {
		return domain.Wrapf(domain.ErrVersionNotAllowed, "version %d", version)
	}
	return nil
}

// CheckVersion fails when the running version may not mutate the vault.
func (v *Vault) CheckVersion() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.checkVersionLocked(v.version)
}

func (v *Vault) DeepReserves() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reserve
}

func (v *Vault) CoverageFees(coin domain.CoinType) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.coverage[coin]
}

func (v *Vault) ProtocolFees(coin domain.CoinType) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.protocol[coin]
}

// Balances is a point-in-time copy of every vault balance.
type Balances struct {
	DeepReserves uint64                     `json:"deep_reserves"`
	Coverage     map[domain.CoinType]uint64 `json:"coverage_fees"`
	Protocol     map[domain.CoinType]uint64 `json:"protocol_fees"`
	Allowed      []uint64                   `json:"allowed_versions"`
	Disabled     []uint64                   `json:"disabled_versions"`
}

func (v *Vault) Snapshot() Balances {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

func sortedVersions(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for ver := range set {
		out = append(out, ver)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DepositReserve adds DEEP to the reserve. Anyone may donate.
func (v *Vault) DepositReserve(c domain.Coin) error {
	return v.WithVersion(v.version).DepositReserve(c)
}

// DrawReserve takes DEEP out of the reserve to fund an order.
func (v *Vault) DrawReserve(amount uint64) (domain.Coin, error) {
	return v.WithVersion(v.version).DrawReserve(amount)
}

func (v *Vault) AddCoverageFee(c domain.Coin) error {
	return v.WithVersion(v.version).AddCoverageFee(c)
}

func (v *Vault) AddProtocolFee(c domain.Coin) error {
	return v.WithVersion(v.version).AddProtocolFee(c)
}

// RemoveCoverageFee reverses an AddCoverageFee within the same operation.
func (v *Vault) RemoveCoverageFee(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return v.WithVersion(v.version).WithdrawCoverageFee(coin, amount)
}

// RemoveProtocolFee reverses an AddProtocolFee within the same operation.
func (v *Vault) RemoveProtocolFee(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return v.WithVersion(v.version).WithdrawProtocolFee(coin, amount)
}

// Handle mutates the vault on behalf of a specific code version.
type Handle struct {
	vault   *Vault
	version uint64
}

// CheckVersion fails when the handle's version may not mutate the vault.
func (h *Handle) CheckVersion() error {
	h.vault.mu.RLock()
	defer h.vault.mu.RUnlock()
	return h.vault.checkVersionLocked(h.version)
}

// Vault returns the shared state behind h.
func (h *Handle) Vault() *Vault {
	return h.vault
}

func (h *Handle) DepositReserve(c domain.Coin) error {
	v := h.vault
	if c.Value > 0 && c.Type != v.deepType {
		return domain.Wrapf(domain.ErrCoinTypeMismatch, "reserve takes %s, got %s", v.deepType, c.Type)
	}
	return v.mutate(func() error {
		if err := v.checkVersionLocked(h.version); err != nil {
			return err
		}
		total, err := fixedmath.Add(v.reserve, c.Value)
		if err != nil {
			return err
		}
		v.reserve = total
		return nil
	})
}

func (h *Handle) DrawReserve(amount uint64) (domain.Coin, error) {
	v := h.vault
	err := v.mutate(func() error {
		if err := v.checkVersionLocked(h.version); err != nil {
			return err
		}
		if amount > v.reserve {
			return domain.Wrapf(domain.ErrReserveWithdrawExceeds, "requested %d, reserve %d", amount, v.reserve)
		}
		v.reserve -= amount
		return nil
	})
	if err != nil {
		return domain.Coin{}, err
	}
	return domain.NewCoin(v.deepType, amount), nil
}

func (h *Handle) AddCoverageFee(c domain.Coin) error {
	return h.addToBucket(h.vault.coverage, c)
}

func (h *Handle) AddProtocolFee(c domain.Coin) error {
	return h.addToBucket(h.vault.protocol, c)
}

func (h *Handle) WithdrawCoverageFee(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return h.takeFromBucket(h.vault.coverage, coin, amount)
}

func (h *Handle) WithdrawProtocolFee(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return h.takeFromBucket(h.vault.protocol, coin, amount)
}

func (h *Handle) addToBucket(bucket map[domain.CoinType]uint64, c domain.Coin) error {
	if c.Value == 0 {
		return nil
	}
	v := h.vault
	return v.mutate(func() error {
		if err := v.checkVersionLocked(h.version); err != nil {
			return err
		}
		total, err := fixedmath.Add(bucket[c.Type], c.Value)
		if err != nil {
			return err
		}
		bucket[c.Type] = total
		return nil
	})
}

func (h *Handle) takeFromBucket(bucket map[domain.CoinType]uint64, coin domain.CoinType, amount uint64) (domain.Coin, error) {
	v := h.vault
	err := v.mutate(func() error {
		if err := v.checkVersionLocked(h.version); err != nil {
			return err
		}
		if amount > bucket[coin] {
			return domain.Wrapf(domain.ErrFeeBucketWithdrawExceeds, "%s requested %d, available %d", coin, amount, bucket[coin])
		}
		bucket[coin] -= amount
		return nil
	})
	if err != nil {
		return domain.Coin{}, err
	}
	return domain.NewCoin(coin, amount), nil
}
