package router

import (
	"log/slog"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

// purse is anything coins can be moved in and out of.
type purse interface {
	Balance(coin domain.CoinType) uint64
	Deposit(c domain.Coin) error
	Withdraw(coin domain.CoinType, amount uint64) (domain.Coin, error)
}

// pouch holds coins in flight between sources and their destination.
type pouch struct {
	coin domain.Coin
}

func newPouch(coin domain.CoinType) *pouch {
	return &pouch{coin: domain.ZeroCoin(coin)}
}

func (p *pouch) Balance(coin domain.CoinType) uint64 {
	if coin != p.coin.Type {
		return 0
	}
	return p.coin.Value
}

func (p *pouch) Deposit(c domain.Coin) error {
	return p.coin.Join(c)
}

func (p *pouch) Withdraw(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	if amount == 0 {
		return domain.ZeroCoin(coin), nil
	}
	if coin != p.coin.Type {
		return domain.Coin{}, domain.Wrapf(domain.ErrCoinTypeMismatch, "pouch holds %s, asked for %s", p.coin.Type, coin)
	}
	return p.coin.Split(amount)
}

// journal records compensating actions for applied steps so a failed
// operation can be unwound in reverse order.
type journal struct {
	op     string
	undo   []func() error
	logger *slog.Logger
}

func newJournal(op string, logger *slog.Logger) *journal {
	return &journal{op: op, logger: logger}
}

func (j *journal) add(fn func() error) {
	j.undo = append(j.undo, fn)
}

// transfer moves amount of coin between purses and journals the reverse move.
func (j *journal) transfer(from, to purse, coin domain.CoinType, amount uint64) error {
	if amount == 0 {
		return nil
	}
	c, err := from.Withdraw(coin, amount)
	if err != nil {
		return err
	}
	if err := to.Deposit(c); err != nil {
		if restoreErr := from.Deposit(c); restoreErr != nil {
			j.logger.Error("transfer restore failed", "op", j.op, "coin", coin, "amount", amount, "error", restoreErr)
		}
		return err
	}
	j.add(func() error {
		back, err := to.Withdraw(coin, amount)
		if err != nil {
			return err
		}
		return from.Deposit(back)
	})
	return nil
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		if err := j.undo[i](); err != nil {
			j.logger.Error("rollback step failed", "op", j.op, "step", i, "error", err)
		}
	}
	j.undo = nil
}
