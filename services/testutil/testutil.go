package testutil

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// cleanupTables lists the tables whose test rows are keyed by a name prefix.
var cleanupTables = map[string]string{
	"unsettled_fees": "pool_id",
	"router_orders":  "pool_id",
	"fee_tiers":      "name",
}

// TestDB opens the integration database and returns it together with a
// unique row prefix. Rows starting with the prefix are removed when the test
// ends. The test is skipped unless RUN_DB_INTEGRATION is set.
func TestDB(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("set RUN_DB_INTEGRATION=1 to run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, testDSN())
	if err != nil {
		t.Skipf("db connection failed: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("db ping failed: %v", err)
	}
	t.Cleanup(pool.Close)

	prefix := "test_" + uuid.NewString()[:8] + "_"
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for table, column := range cleanupTables {
			if _, err := pool.Exec(ctx, "DELETE FROM "+table+" WHERE "+column+" LIKE $1", prefix+"%"); err != nil {
				t.Logf("cleanup %s: %v", table, err)
			}
		}
	})
	return pool, prefix
}

// testDSN prefers ROUTER_TEST_DSN and otherwise builds one from POSTGRES_*.
func testDSN() string {
	if dsn := os.Getenv("ROUTER_TEST_DSN"); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(env("POSTGRES_USER", "router"), env("POSTGRES_PASSWORD", "router")),
		Host:     env("POSTGRES_HOST", "localhost") + ":" + env("POSTGRES_PORT", "5432"),
		Path:     env("POSTGRES_DB", "fee_router"),
		RawQuery: "sslmode=" + env("POSTGRES_SSLMODE", "disable"),
	}
	return u.String()
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
