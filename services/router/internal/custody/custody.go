// Package custody holds in-process wallets and balance managers. Both are
// keyed coin balances; a balance manager additionally carries an id and is
// registered so orders can be traced back to it.
package custody

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/google/uuid"
)

type balances struct {
	mu    sync.Mutex
	coins map[domain.CoinType]uint64
}

func (b *balances) balance(coin domain.CoinType) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coins[coin]
}

func (b *balances) deposit(c domain.Coin) error {
	if c.Value == 0 {
		return nil
	}
	if strings.TrimSpace(string(c.Type)) == "" {
		return domain.Wrapf(domain.ErrCoinTypeMismatch, "deposit of untyped coin")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.coins == nil {
		b.coins = make(map[domain.CoinType]uint64)
	}
	current := b.coins[c.Type]
	if c.Value > math.MaxUint64-current {
		return domain.ErrArithmeticOverflow
	}
	b.coins[c.Type] = current + c.Value
	return nil
}

func (b *balances) withdraw(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.coins[coin]
	if amount > current {
		return domain.Coin{}, domain.Wrapf(domain.ErrInsufficientBalance, "withdraw %d %s, have %d", amount, coin, current)
	}
	if amount == current {
		delete(b.coins, coin)
	} else {
		b.coins[coin] = current - amount
	}
	return domain.NewCoin(coin, amount), nil
}

func (b *balances) snapshot() map[domain.CoinType]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[domain.CoinType]uint64, len(b.coins))
	for k, v := range b.coins {
		out[k] = v
	}
	return out
}

// Wallet is the coin set a caller brings into a single operation.
type Wallet struct {
	owner string
	balances
}

func NewWallet(owner string, coins ...domain.Coin) *Wallet {
	w := &Wallet{owner: owner}
	for _, c := range coins {
		_ = w.deposit(c)
	}
	return w
}

func (w *Wallet) Owner() string                        { return w.owner }
func (w *Wallet) Balance(coin domain.CoinType) uint64  { return w.balance(coin) }
func (w *Wallet) Deposit(c domain.Coin) error          { return w.deposit(c) }
func (w *Wallet) Snapshot() map[domain.CoinType]uint64 { return w.snapshot() }

func (w *Wallet) Withdraw(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return w.withdraw(coin, amount)
}

// BalanceManager is owner-controlled custody used by the matching engine.
type BalanceManager struct {
	id    string
	owner string
	balances
}

func NewBalanceManager(owner string) *BalanceManager {
	return NewBalanceManagerWithID(uuid.NewString(), owner)
}

func NewBalanceManagerWithID(id, owner string) *BalanceManager {
	return &BalanceManager{id: id, owner: owner}
}

func (m *BalanceManager) ID() string                           { return m.id }
func (m *BalanceManager) Owner() string                        { return m.owner }
func (m *BalanceManager) Balance(coin domain.CoinType) uint64  { return m.balance(coin) }
func (m *BalanceManager) Deposit(c domain.Coin) error          { return m.deposit(c) }
func (m *BalanceManager) Snapshot() map[domain.CoinType]uint64 { return m.snapshot() }

func (m *BalanceManager) Withdraw(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return m.withdraw(coin, amount)
}

// CheckOwner fails with ErrNotOwner unless caller owns bm.
func CheckOwner(bm domain.BalanceManager, caller string) error {
	if bm == nil || caller == "" || bm.Owner() != caller {
		return domain.ErrNotOwner
	}
	return nil
}

// Registry indexes balance managers by id and wallets by owner.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*BalanceManager
	wallets  map[string]*Wallet
}

func NewRegistry() *Registry {
	return &Registry{
		managers: make(map[string]*BalanceManager),
		wallets:  make(map[string]*Wallet),
	}
}

// Open creates and registers a balance manager for owner.
func (r *Registry) Open(owner string) (*BalanceManager, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, domain.Wrapf(domain.ErrInvalidOrder, "owner required")
	}
	bm := NewBalanceManager(owner)
	r.mu.Lock()
	r.managers[bm.ID()] = bm
	r.mu.Unlock()
	return bm, nil
}

// Add registers an existing balance manager.
func (r *Registry) Add(bm *BalanceManager) {
	r.mu.Lock()
	r.managers[bm.ID()] = bm
	r.mu.Unlock()
}

func (r *Registry) BalanceManager(id string) (*BalanceManager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bm, ok := r.managers[id]
	if !ok {
		return nil, domain.Wrapf(domain.ErrManagerNotFound, "%s", id)
	}
	return bm, nil
}

// OwnedBy lists the balance managers owned by owner, sorted by id.
func (r *Registry) OwnedBy(owner string) []*BalanceManager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*BalanceManager
	for _, bm := range r.managers {
		if bm.Owner() == owner {
			out = append(out, bm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Wallet returns owner's wallet, creating an empty one on first use.
func (r *Registry) Wallet(owner string) *Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[owner]
	if !ok {
		w = NewWallet(owner)
		r.wallets[owner] = w
	}
	return w
}
