package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/vault"
	"github.com/jackc/pgx/v5"
)

var _ vault.BalanceStore = (*Store)(nil)

// LoadVault reads the single vault row. It reports false before the first save.
func (s *Store) LoadVault(ctx context.Context) (vault.Balances, bool, error) {
	var b vault.Balances
	err := s.pool.QueryRow(ctx, `SELECT state FROM vault_state WHERE id = 1`).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return vault.Balances{}, false, nil
		}
		return vault.Balances{}, false, fmt.Errorf("load vault state: %w", err)
	}
	return b, true, nil
}

func (s *Store) SaveVault(ctx context.Context, b vault.Balances) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vault_state (id, state, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, b)
	if err != nil {
		return fmt.Errorf("save vault state: %w", err)
	}
	return nil
}
