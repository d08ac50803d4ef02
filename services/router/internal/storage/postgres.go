package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/router"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/unsettled"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists unsettled fees, the placed-order journal and fee tiers.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ unsettled.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Migrate applies embedded migrations in name order, once each.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		var applied bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		sql, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		}); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		s.logger.Info("migration applied", "file", name)
	}
	return nil
}

const unsettledColumns = `pool_id, balance_manager_id, order_id, coin_type, balance::text,
	order_quantity::text, maker_quantity::text, created_at, updated_at`

func (s *Store) Get(ctx context.Context, key domain.OrderKey) (unsettled.Entry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+unsettledColumns+`
		FROM unsettled_fees
		WHERE pool_id = $1 AND balance_manager_id = $2 AND order_id = $3
	`, key.PoolID, key.BalanceManagerID, key.OrderID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return unsettled.Entry{}, false, nil
		}
		return unsettled.Entry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) Insert(ctx context.Context, entry unsettled.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO unsettled_fees (pool_id, balance_manager_id, order_id, coin_type, balance,
			order_quantity, maker_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9)
	`, entry.Key.PoolID, entry.Key.BalanceManagerID, entry.Key.OrderID, string(entry.Balance.Type),
		formatUint(entry.Balance.Value), formatUint(entry.OrderQuantity), formatUint(entry.MakerQuantity),
		entry.CreatedAt.UTC(), entry.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Wrapf(domain.ErrUnsettledFeeExists, "%s", entry.Key)
		}
		return fmt.Errorf("insert unsettled fee: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, entry unsettled.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE unsettled_fees
		SET balance = $4::numeric, updated_at = $5
		WHERE pool_id = $1 AND balance_manager_id = $2 AND order_id = $3 AND coin_type = $6
	`, entry.Key.PoolID, entry.Key.BalanceManagerID, entry.Key.OrderID,
		formatUint(entry.Balance.Value), entry.UpdatedAt.UTC(), string(entry.Balance.Type))
	if err != nil {
		return fmt.Errorf("update unsettled fee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Wrapf(domain.ErrOrderNotFound, "no unsettled fee for %s", entry.Key)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key domain.OrderKey) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM unsettled_fees
		WHERE pool_id = $1 AND balance_manager_id = $2 AND order_id = $3
	`, key.PoolID, key.BalanceManagerID, key.OrderID)
	if err != nil {
		return fmt.Errorf("delete unsettled fee: %w", err)
	}
	return nil
}

func (s *Store) ListByBalanceManager(ctx context.Context, balanceManagerID string) ([]unsettled.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+unsettledColumns+`
		FROM unsettled_fees
		WHERE balance_manager_id = $1
		ORDER BY created_at, pool_id, order_id
	`, balanceManagerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []unsettled.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) Keys(ctx context.Context, limit int) ([]domain.OrderKey, error) {
	query := `
		SELECT pool_id, balance_manager_id, order_id
		FROM unsettled_fees
		ORDER BY created_at, pool_id, balance_manager_id, order_id
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.OrderKey
	for rows.Next() {
		var k domain.OrderKey
		if err := rows.Scan(&k.PoolID, &k.BalanceManagerID, &k.OrderID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keys, nil
}

// RecordOrder journals a placed order. Replays of the same order id are
// ignored.
func (s *Store) RecordOrder(ctx context.Context, rec router.OrderRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO router_orders (order_id, pool_id, balance_manager_id, owner, fee_type, is_bid,
			quantity, executed_quantity, notional, fee_coin, taker_fee, maker_fee, coverage_fee,
			deep_from_reserves, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10,
			$11::numeric, $12::numeric, $13::numeric, $14::numeric, $15)
		ON CONFLICT (order_id) DO NOTHING
	`, rec.OrderID, rec.PoolID, rec.BalanceManagerID, rec.Owner, string(rec.FeeType), rec.IsBid,
		formatUint(rec.Quantity), formatUint(rec.ExecutedQuantity), formatUint(rec.Notional),
		string(rec.FeeCoin), formatUint(rec.TakerFee), formatUint(rec.MakerFee),
		formatUint(rec.CoverageFee), formatUint(rec.DeepFromReserves), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}
	return nil
}

func (s *Store) GetAllFeeTiers(ctx context.Context) ([]FeeTier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, discount_ppb, min_volume::text
		FROM fee_tiers
		ORDER BY min_volume DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []FeeTier
	for rows.Next() {
		var tier FeeTier
		var discount int64
		if err := rows.Scan(&tier.ID, &tier.Name, &discount, &tier.MinVolume); err != nil {
			return nil, err
		}
		tier.DiscountRate = uint64(discount)
		tiers = append(tiers, tier)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tiers, nil
}

// GetOwnerVolume returns the executed quote notional an owner traded through
// the router since the given time.
func (s *Store) GetOwnerVolume(ctx context.Context, owner string, since time.Time) (string, error) {
	var volume string
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(notional), 0)::text
		FROM router_orders
		WHERE owner = $1 AND created_at >= $2
	`, owner, since.UTC())
	if err := row.Scan(&volume); err != nil {
		return "", fmt.Errorf("query volume: %w", err)
	}
	return volume, nil
}

func scanEntry(row pgx.Row) (unsettled.Entry, error) {
	var entry unsettled.Entry
	var coin, balance, orderQty, makerQty string
	if err := row.Scan(&entry.Key.PoolID, &entry.Key.BalanceManagerID, &entry.Key.OrderID, &coin,
		&balance, &orderQty, &makerQty, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return unsettled.Entry{}, err
	}
	value, err := parseUint(balance)
	if err != nil {
		return unsettled.Entry{}, err
	}
	if entry.OrderQuantity, err = parseUint(orderQty); err != nil {
		return unsettled.Entry{}, err
	}
	if entry.MakerQuantity, err = parseUint(makerQty); err != nil {
		return unsettled.Entry{}, err
	}
	entry.Balance = domain.NewCoin(domain.CoinType(coin), value)
	return entry, nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
