package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/health"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/httpmiddleware"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/kafka"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/logging"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/metrics"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/trace"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/admin"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/book"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/cache"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/config"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/consumer"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/custody"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/handlers"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/multisig"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/oracle"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/protocolfee"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/router"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/storage"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/sweeper"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/timelock"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/unsettled"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewFromConfig(cfg.App)
	defer logCloser.Close()

	shutdownTracer, err := trace.InitTracer(context.Background(), cfg.App)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTP(registry)
	routerMetrics := router.NewMetrics(registry)

	ready := health.NewManager(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		producer  *kafka.SyncProducer
		publisher kafka.Publisher
	)
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		publisher = producer
		if strings.TrimSpace(cfg.Kafka.Topics.DeadLetter) != "" {
			publisher = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.Topics.DeadLetter, logger)
		}
	}

	engine := book.NewEngine(domain.CoinType(cfg.Market.DeepType), publisher, cfg.Kafka.Topics.OrdersClosed, logger, routerMetrics)
	for _, spec := range cfg.Market.Pools {
		if err := engine.AddPool(spec); err != nil {
			logger.Error("pool registration failed", "pool_id", spec.ID, "error", err)
			os.Exit(1)
		}
	}

	v := vault.New(domain.CoinType(cfg.Market.DeepType), logger)

	accounts := custody.NewRegistry()
	for _, seed := range cfg.Market.Wallets {
		wallet := accounts.Wallet(seed.Owner)
		for _, coin := range seed.Balances() {
			if err := wallet.Deposit(coin); err != nil {
				logger.Error("wallet seed failed", "owner", seed.Owner, "error", err)
				os.Exit(1)
			}
		}
	}

	feed := buildPriceFeed(ctx, cfg, ready, logger)
	adapter := oracle.NewAdapter(feed, engine, cfg.Oracle.Adapter(), logger, routerMetrics)

	fees, err := protocolfee.NewConfig(cfg.FeeDefaults)
	if err != nil {
		logger.Error("fee config invalid", "error", err)
		os.Exit(1)
	}

	var (
		ledgerStore unsettled.Store = unsettled.NewMemoryStore()
		store       *storage.Store
	)
	if cfg.DB.Driver == config.StoragePostgres {
		pool, err := connectDB(cfg)
		if err != nil {
			logger.Error("db connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		ready.AddCheck("postgres", pool.Ping)
		store = storage.New(pool, logger)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("db migration failed", "error", err)
			os.Exit(1)
		}
		ledgerStore = store
	}
	restored := false
	if store != nil {
		if restored, err = v.Restore(ctx, store); err != nil {
			logger.Error("vault restore failed", "error", err)
			os.Exit(1)
		}
	}
	if cfg.Market.ReserveSeed > 0 && !restored {
		if err := v.DepositReserve(domain.NewCoin(v.DeepType(), cfg.Market.ReserveSeed)); err != nil {
			logger.Error("reserve seed failed", "error", err)
			os.Exit(1)
		}
	}
	ledger := unsettled.New(ledgerStore, logger)

	feeRouter, err := router.New(engine, v, adapter, fees, ledger, router.Options{
		ReferenceCoin: domain.CoinType(cfg.Market.ReferenceCoin),
		Version:       vault.CurrentVersion,
		EventsTopic:   cfg.Kafka.Topics.FeeEvents,
	}, logger, routerMetrics)
	if err != nil {
		logger.Error("router init failed", "error", err)
		os.Exit(1)
	}
	if publisher != nil {
		feeRouter.WithPublisher(publisher)
	}
	if store != nil {
		tiers := cache.NewTierCache()
		if err := tiers.Load(ctx, store); err != nil {
			logger.Warn("fee tier load failed", "error", err)
		}
		tiers.StartAutoRefresh(ctx, store, cfg.Tiers.RefreshInterval, routerMetrics, logger)
		feeRouter.WithDiscounts(cache.NewDiscounts(tiers, store, cfg.Tiers.VolumeWindow)).WithOrderJournal(store)
	}

	var adminAPI handlers.AdminService
	if cfg.Admin.Enabled() {
		policy, err := multisig.NewPolicy(cfg.Admin.PublicKeys, cfg.Admin.Weights, cfg.Admin.Threshold)
		if err != nil {
			logger.Error("admin policy invalid", "error", err)
			os.Exit(1)
		}
		tickets := timelock.NewManager(cfg.Admin.TimelockDelay, cfg.Admin.TimelockWindow, logger)
		go pruneTickets(ctx, tickets, time.Hour)
		adminAPI = admin.NewService(policy, tickets, v, fees, adapter, logger)
		logger.Info("admin api enabled", "policy", policy.Address().Hex(), "threshold", policy.Threshold())
	}

	var sweep *sweeper.Sweeper
	if cfg.Sweeper.Enabled {
		sweep, err = sweeper.New(feeRouter, ledger, sweeper.Config{
			Schedule:  cfg.Sweeper.Schedule,
			BatchSize: cfg.Sweeper.BatchSize,
			Timeout:   cfg.Sweeper.Timeout,
		}, logger)
		if err != nil {
			logger.Error("sweeper init failed", "error", err)
			os.Exit(1)
		}
		sweep.Start()
	}

	var consumerGroup *kafka.Consumer
	if cfg.Kafka.Enabled {
		opts := []kafka.ConsumerOption{kafka.WithRetry(cfg.Kafka.RetryAttempts, cfg.Kafka.RetryBackoff)}
		if strings.TrimSpace(cfg.Kafka.Topics.DeadLetter) != "" {
			opts = append(opts, kafka.WithDeadLetter(producer, cfg.Kafka.Topics.DeadLetter))
		}
		consumerGroup, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger, opts...)
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		defer consumerGroup.Close()

		closed := consumer.NewClosedOrderConsumer(feeRouter, logger)
		go func() {
			logger.Info("closed order consumer starting", "topic", cfg.Kafka.Topics.OrdersClosed)
			if err := consumerGroup.Consume(ctx, []string{cfg.Kafka.Topics.OrdersClosed}, closed); err != nil {
				logger.Error("kafka consumer error", "error", err)
			}
		}()
	}

	api := handlers.New(feeRouter, accounts, v, engine, adminAPI, logger)
	httpServer := buildHTTPServer(cfg, api, ready, registry, httpMetrics, logger)

	ready.SetReady(true)
	go func() {
		logger.Info("router http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, sweep, cancel, logger)
}

// buildPriceFeed returns the Hermes feed, fronted by redis when configured.
func buildPriceFeed(ctx context.Context, cfg *config.Config, ready *health.Manager, logger *slog.Logger) domain.PriceFeed {
	var feed domain.PriceFeed = oracle.NewHermesFeed(cfg.Oracle.HermesURL, cfg.Oracle.Timeout)
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return feed
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, quote cache disabled", "addr", cfg.Redis.Addr, "error", err)
		_ = client.Close()
		return feed
	}
	ready.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	return oracle.NewCachedFeed(feed, client, cfg.Oracle.CacheTTL, cfg.Oracle.CachePrefix, logger)
}

func pruneTickets(ctx context.Context, tickets *timelock.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickets.PruneExpired()
		}
	}
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func buildHTTPServer(cfg *config.Config, api *handlers.Handler, ready *health.Manager, registry *prometheus.Registry, httpMetrics *metrics.HTTP, logger *slog.Logger) *http.Server {
	engine := gin.New()
	engine.Use(httpmiddleware.RequestID())
	engine.Use(trace.Middleware(cfg.App.ServiceName))
	engine.Use(httpmiddleware.Logger(logger, httpMetrics))
	engine.Use(httpmiddleware.Recovery(logger))

	engine.GET("/healthz", health.LivenessHandler)
	engine.GET("/readyz", health.ReadinessHandler(ready))
	engine.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))
	api.Register(engine, []byte(cfg.JWTSecret))

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	return &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, sweep *sweeper.Sweeper, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()
	if sweep != nil {
		sweep.Stop()
	}

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
