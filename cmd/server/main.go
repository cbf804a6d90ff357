// Package main runs the trainer HTTP server:
// - one practice session per trader, resumed from the session KV store
// - account subscriptions settling validations as outcomes are published
// - a settlement journal and performance snapshots fed by every session
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tradetrainer/internal/api"
	"tradetrainer/internal/config"
	"tradetrainer/internal/content"
	"tradetrainer/internal/observability"
	"tradetrainer/internal/performance"
	"tradetrainer/internal/program"
	programstub "tradetrainer/internal/program/stub"
	"tradetrainer/internal/session"
	"tradetrainer/internal/solana"
	solanastub "tradetrainer/internal/solana/stub"
	"tradetrainer/internal/storage"
	chstore "tradetrainer/internal/storage/clickhouse"
	"tradetrainer/internal/storage/memory"
	"tradetrainer/internal/storage/migrations"
	pgstore "tradetrainer/internal/storage/postgres"
	redisstore "tradetrainer/internal/storage/redis"
	sqlitestore "tradetrainer/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRADETRAINER_CONFIG"), "YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	backend := flag.String("storage", "", "Session storage backend: memory, sqlite, redis (overrides config)")
	useStub := flag.Bool("use-stub", false, "Use the in-memory program instead of a cluster")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *useStub {
		cfg.Solana.UseStub = true
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	logger := cfg.NewLogger()
	log := logger.WithField("component", "server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Server error: %v", err)
	}
	log.Info("Shutdown complete")
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	log := logger.WithField("component", "server")

	kv, closeKV, err := createKVStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create kv store: %w", err)
	}
	defer closeKV()

	journal, closeJournal, err := createJournal(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer closeJournal()

	prog, ws, err := createProgram(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create program client: %w", err)
	}
	defer ws.Close()

	fetcher := content.NewCache(
		content.NewGatewayClient(cfg.Content.Gateway,
			content.WithGatewayHTTPClient(&http.Client{Timeout: cfg.ContentTimeout()})),
		cfg.Content.CacheSize,
	)

	if n, err := journal.RecomputeAll(ctx); err != nil {
		log.WithError(err).Warn("Performance recompute failed")
	} else {
		log.WithField("traders", n).Info("Performance snapshots recomputed")
	}

	g, gctx := errgroup.WithContext(ctx)

	manager := session.NewManager(gctx, session.Options{
		Program:          prog,
		Content:          fetcher,
		Store:            kv,
		Authority:        cfg.Authority,
		Recorder:         journal,
		TraderRetries:    cfg.Session.TraderRetries,
		TraderRetryDelay: cfg.TraderRetryDelay(),
		WatchInterval:    cfg.WatchInterval(),
		Logger:           logger,
	}, ws)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(manager, journal, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		manager.Wait()
		return err
	})

	if cfg.Trader != "" {
		// warm the configured trader's session so its subscriptions start immediately
		g.Go(func() error {
			if _, err := manager.Get(gctx, cfg.Trader); err != nil {
				log.WithError(err).WithField("trader", cfg.Trader).Warn("Session warm-up failed")
			}
			return nil
		})
	}

	return g.Wait()
}

func newRouter(manager *session.Manager, journal *performance.Aggregator, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "sessions": manager.Len()})
	})
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	api.RegisterRoutes(router.Group("/api/v1"), api.NewHandler(manager, journal, logger))
	return router
}

// createKVStore opens the session KV backend.
func createKVStore(ctx context.Context, cfg *config.Config) (storage.KVStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewKVStore(), func() {}, nil
	case config.BackendRedis:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		store, err := sqlitestore.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}

// createJournal builds the settlement journal and performance stores. Empty DSNs keep
// them in memory.
func createJournal(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*performance.Aggregator, func(), error) {
	var (
		settlements  storage.SettlementStore  = memory.NewSettlementStore()
		performances storage.PerformanceStore = memory.NewPerformanceStore()
		cleanups     []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		settlements = pgstore.NewSettlementStore(pool)
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		performances = chstore.NewPerformanceStore(conn)
	}

	return performance.NewAggregator(settlements, performances, logger), cleanup, nil
}

// createProgram returns the program client and the account subscription client.
func createProgram(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (program.Client, solana.WSClient, error) {
	if cfg.Solana.UseStub {
		feed := solanastub.NewWSClient()
		stub := programstub.NewClient(cfg.Authority)
		stub.Feed = feed
		logger.WithField("component", "server").Warn("Using in-memory program; exercises must be created through it")
		return stub, feed, nil
	}

	programID, err := solana.ParsePublicKey(cfg.Solana.ProgramID)
	if err != nil {
		return nil, nil, fmt.Errorf("program id: %w", err)
	}

	var payer *solana.Keypair
	if cfg.Solana.KeypairPath != "" {
		if payer, err = solana.LoadKeypair(cfg.Solana.KeypairPath); err != nil {
			return nil, nil, fmt.Errorf("load keypair: %w", err)
		}
	}

	opts := []solana.ClientOption{solana.WithCommitment(cfg.Solana.Commitment)}
	if cfg.Solana.RateLimit > 0 {
		opts = append(opts, solana.WithRateLimit(cfg.Solana.RateLimit, cfg.Solana.RateBurst))
	}
	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint, opts...)

	wsCfg := solana.DefaultWSConfig()
	wsCfg.Commitment = cfg.Solana.Commitment
	wsCfg.Logger = logger
	ws, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect websocket: %w", err)
	}

	return program.NewRPCClient(rpc, programID, payer, logger), ws, nil
}
