package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	base "github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/config"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/book"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/fixedmath"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/oracle"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/protocolfee"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/timelock"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RedisConfig is optional; an empty Addr disables the quote cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaTopics struct {
	OrdersClosed string `mapstructure:"orders_closed"`
	FeeEvents    string `mapstructure:"fee_events"`
	DeadLetter   string `mapstructure:"dead_letter"`
}

type KafkaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Brokers       []string      `mapstructure:"brokers"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Topics        KafkaTopics   `mapstructure:"topics"`
}

type OracleConfig struct {
	HermesURL          string        `mapstructure:"hermes_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	CachePrefix        string        `mapstructure:"cache_prefix"`
	DeepUSDFeedID      string        `mapstructure:"deep_usd_feed_id"`
	ReferenceUSDFeedID string        `mapstructure:"reference_usd_feed_id"`
	ReferencePoolID    string        `mapstructure:"reference_pool_id"`
}

func (c OracleConfig) Adapter() oracle.Config {
	return oracle.Config{
		DeepUSDFeedID:      c.DeepUSDFeedID,
		ReferenceUSDFeedID: c.ReferenceUSDFeedID,
		ReferencePoolID:    c.ReferencePoolID,
	}
}

type SweeperConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AdminConfig lists compressed secp256k1 public keys in hex. No keys means
// the admin API is not mounted.
type AdminConfig struct {
	PublicKeys     []string      `mapstructure:"public_keys"`
	Weights        []uint8       `mapstructure:"weights"`
	Threshold      uint16        `mapstructure:"threshold"`
	TimelockDelay  time.Duration `mapstructure:"timelock_delay"`
	TimelockWindow time.Duration `mapstructure:"timelock_window"`
}

func (c AdminConfig) Enabled() bool {
	return len(c.PublicKeys) > 0
}

type TierConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	VolumeWindow    time.Duration `mapstructure:"volume_window"`
}

// FeeRates holds decimal fractions such as "0.001".
type FeeRates struct {
	TakerRate   string `mapstructure:"taker_rate"`
	MakerRate   string `mapstructure:"maker_rate"`
	MaxDiscount string `mapstructure:"max_discount"`
}

func (r FeeRates) parse() (protocolfee.Rates, error) {
	var out protocolfee.Rates
	var err error
	if out.TakerRate, err = fixedmath.ParseFraction(r.TakerRate); err != nil {
		return out, fmt.Errorf("taker rate: %w", err)
	}
	if out.MakerRate, err = fixedmath.ParseFraction(r.MakerRate); err != nil {
		return out, fmt.Errorf("maker rate: %w", err)
	}
	if out.MaxDiscount, err = fixedmath.ParseFraction(r.MaxDiscount); err != nil {
		return out, fmt.Errorf("max discount: %w", err)
	}
	return out, out.Validate()
}

// WalletSeed funds an owner's wallet when the process starts with the
// in-process custody registry.
type WalletSeed struct {
	Owner string            `mapstructure:"owner"`
	Coins map[string]uint64 `mapstructure:"coins"`
}

type MarketConfig struct {
	DeepType      string              `mapstructure:"deep_type"`
	ReferenceCoin string              `mapstructure:"reference_coin"`
	ReserveSeed   uint64              `mapstructure:"reserve_seed"`
	Pools         []book.PoolSpec     `mapstructure:"pools"`
	Wallets       []WalletSeed        `mapstructure:"wallets"`
	Fees          map[string]FeeRates `mapstructure:"fees"`
}

type Config struct {
	App       base.AppConfig `mapstructure:"-"`
	DB        DBConfig       `mapstructure:"postgres"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Kafka     KafkaConfig    `mapstructure:"kafka"`
	Oracle    OracleConfig   `mapstructure:"oracle"`
	Sweeper   SweeperConfig  `mapstructure:"sweeper"`
	Admin     AdminConfig    `mapstructure:"admin"`
	Tiers     TierConfig     `mapstructure:"tiers"`
	Market    MarketConfig   `mapstructure:"market"`
	JWTSecret string         `mapstructure:"jwt_secret"`

	// FeeDefaults is Market.Fees parsed into billionths.
	FeeDefaults map[protocolfee.FeeType]protocolfee.Rates `mapstructure:"-"`
}

func Load() (*Config, error) {
	return LoadFile(os.Getenv("ROUTER_CONFIG"))
}

func LoadFile(path string) (*Config, error) {
	v, err := base.NewViper(path)
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	appCfg, err := base.Unmarshal(v)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.App = *appCfg
	cfg.Kafka.Brokers = splitCSV(cfg.Kafka.Brokers)
	cfg.Admin.PublicKeys = splitCSV(cfg.Admin.PublicKeys)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("jwt_secret", "")

	v.SetDefault("postgres.driver", StorageMemory)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.name", "fee_router")
	v.SetDefault("postgres.user", "router")
	v.SetDefault("postgres.password", "router")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "fee-router")
	v.SetDefault("kafka.retry_attempts", 3)
	v.SetDefault("kafka.retry_backoff", "500ms")
	v.SetDefault("kafka.topics.orders_closed", book.DefaultClosedTopic)
	v.SetDefault("kafka.topics.fee_events", "fees.events")
	v.SetDefault("kafka.topics.dead_letter", "fees.dlq")

	v.SetDefault("oracle.hermes_url", "https://hermes.pyth.network")
	v.SetDefault("oracle.timeout", "3s")
	v.SetDefault("oracle.cache_ttl", "2s")
	v.SetDefault("oracle.cache_prefix", "router:quote:")
	v.SetDefault("oracle.deep_usd_feed_id", "")
	v.SetDefault("oracle.reference_usd_feed_id", "")
	v.SetDefault("oracle.reference_pool_id", "DEEP_SUI")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@every 1m")
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("sweeper.timeout", "30s")

	v.SetDefault("admin.public_keys", []string{})
	v.SetDefault("admin.weights", []int{})
	v.SetDefault("admin.threshold", 0)
	v.SetDefault("admin.timelock_delay", timelock.DefaultDelay.String())
	v.SetDefault("admin.timelock_window", timelock.DefaultWindow.String())

	v.SetDefault("tiers.refresh_interval", "5m")
	v.SetDefault("tiers.volume_window", "720h")

	v.SetDefault("market.deep_type", "DEEP")
	v.SetDefault("market.reference_coin", "SUI")
	v.SetDefault("market.reserve_seed", 0)
	v.SetDefault("market.pools", []map[string]any{
		{"id": "DEEP_SUI", "base": "DEEP", "quote": "SUI", "tick_size": 1000, "lot_size": 1000000, "min_size": 10000000,
			"taker_fee_rate": 1000000, "maker_fee_rate": 500000, "deep_per_base": 1000000000, "whitelisted": true},
		{"id": "SUI_USDC", "base": "SUI", "quote": "USDC", "tick_size": 1000, "lot_size": 100000000, "min_size": 1000000000,
			"taker_fee_rate": 1000000, "maker_fee_rate": 500000, "deep_per_base": 20000000000},
	})
	v.SetDefault("market.fees", map[string]any{
		string(protocolfee.FeeTypeCoverage): map[string]any{"taker_rate": "0.001", "maker_rate": "0.0005", "max_discount": "0.25"},
		string(protocolfee.FeeTypeInput):    map[string]any{"taker_rate": "0.001", "maker_rate": "0.0005", "max_discount": "0"},
	})
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		if c.App.Env != "dev" {
			return fmt.Errorf("jwt_secret required outside dev")
		}
		c.JWTSecret = "dev-secret"
	}
	switch c.DB.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("postgres.driver must be %q or %q", StorageMemory, StoragePostgres)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		if c.Kafka.ConsumerGroup == "" {
			return fmt.Errorf("kafka consumer group required")
		}
		if c.Kafka.Topics.OrdersClosed == "" || c.Kafka.Topics.FeeEvents == "" {
			return fmt.Errorf("kafka topics required")
		}
	}
	if strings.TrimSpace(c.Market.DeepType) == "" || strings.TrimSpace(c.Market.ReferenceCoin) == "" {
		return fmt.Errorf("market deep_type and reference_coin required")
	}
	seen := make(map[string]struct{}, len(c.Market.Pools))
	for _, p := range c.Market.Pools {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pool %s: %w", p.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("pool %s listed twice", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if c.Admin.Enabled() {
		if len(c.Admin.Weights) != len(c.Admin.PublicKeys) {
			return fmt.Errorf("admin weights must match public keys")
		}
		if c.Admin.Threshold == 0 {
			return fmt.Errorf("admin threshold must be positive")
		}
	}
	if c.Sweeper.Enabled && c.Sweeper.BatchSize <= 0 {
		return fmt.Errorf("sweeper batch size must be positive")
	}

	c.FeeDefaults = make(map[protocolfee.FeeType]protocolfee.Rates, len(c.Market.Fees))
	for name, raw := range c.Market.Fees {
		feeType := protocolfee.FeeType(strings.ToLower(name))
		if !feeType.Valid() {
			return fmt.Errorf("unknown fee type %q", name)
		}
		rates, err := raw.parse()
		if err != nil {
			return fmt.Errorf("fees %s: %w", name, err)
		}
		c.FeeDefaults[feeType] = rates
	}
	return nil
}

func (w WalletSeed) Balances() []domain.Coin {
	out := make([]domain.Coin, 0, len(w.Coins))
	for t, v := range w.Coins {
		out = append(out, domain.NewCoin(domain.CoinType(t), v))
	}
	return out
}

func splitCSV(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
