package vault

import (
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

// EnableVersion adds version to the allowed set. Versions in the permanent
// denylist can never come back.
func (v *Vault) EnableVersion(version uint64) error {
	return v.mutate(func() error {
		if _, ok := v.disabled[version]; ok {
			return domain.Wrapf(domain.ErrVersionDisabled, "version %d", version)
		}
		if _, ok := v.allowed[version]; ok {
			return domain.Wrapf(domain.ErrVersionAlreadyEnabled, "version %d", version)
		}
		v.allowed[version] = struct{}{}
		v.logger.Info("vault version enabled", "version", version)
		return nil
	})
}

// DisableVersion removes version from the allowed set. It can be re-enabled.
func (v *Vault) DisableVersion(version uint64) error {
	return v.mutate(func() error {
		if version == v.version {
			return domain.Wrapf(domain.ErrCannotDisableCurrent, "version %d", version)
		}
		if _, ok := v.allowed[version]; !ok {
			return domain.Wrapf(domain.ErrVersionNotEnabled, "version %d", version)
		}
		delete(v.allowed, version)
		v.logger.Info("vault version disabled", "version", version)
		return nil
	})
}

// PermanentlyDisableVersion revokes version forever.
func (v *Vault) PermanentlyDisableVersion(version uint64) error {
	return v.mutate(func() error {
		if version == v.version {
			return domain.Wrapf(domain.ErrCannotDisableCurrent, "version %d", version)
		}
		if _, ok := v.disabled[version]; ok {
			return domain.Wrapf(domain.ErrVersionDisabled, "version %d already disabled", version)
		}
		delete(v.allowed, version)
		v.disabled[version] = struct{}{}
		v.logger.Warn("vault version permanently disabled", "version", version)
		return nil
	})
}

// WithdrawReserve removes DEEP from the reserve for the treasury.
func (v *Vault) WithdrawReserve(amount uint64) (domain.Coin, error) {
	return v.WithVersion(v.version).DrawReserve(amount)
}

func (v *Vault) WithdrawCoverageFee(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return v.WithVersion(v.version).WithdrawCoverageFee(coin, amount)
}

func (v *Vault) WithdrawProtocolFee(coin domain.CoinType, amount uint64) (domain.Coin, error) {
	return v.WithVersion(v.version).WithdrawProtocolFee(coin, amount)
}
