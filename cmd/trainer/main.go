// Package main is the command-line trainer. Each invocation resumes the trader's
// session from the local state file, so an exercise loaded by `next` is the one
// answered by a later `submit` or `skip`.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradetrainer/internal/config"
	"tradetrainer/internal/content"
	"tradetrainer/internal/program"
	"tradetrainer/internal/session"
	"tradetrainer/internal/solana"
	sqlitestore "tradetrainer/internal/storage/sqlite"
)

var (
	configPath string
	trader     string
	statePath  string
	verbose    bool
)

// app is what every command works on.
type app struct {
	session *session.Session
	logger  *logrus.Logger
	dialWS  func(ctx context.Context) (solana.WSClient, error)
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// appFactory builds the app for a command. Swapped in tests.
type appFactory func(ctx context.Context) (*app, error)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd(newApp)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("TRADETRAINER_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVarP(&trader, "trader", "t", "", "Trader wallet address (overrides config)")
	root.PersistentFlags().StringVar(&statePath, "state", "", "Local state file (overrides config)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp wires a session against the configured cluster and the sqlite state file.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if trader != "" {
		cfg.Trader = trader
	}
	if statePath != "" {
		cfg.Storage.SQLitePath = statePath
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Storage.Backend = config.BackendSQLite
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Trader == "" {
		return nil, fmt.Errorf("trader address required (--trader or TRADETRAINER_TRADER)")
	}
	if cfg.Solana.UseStub {
		return nil, fmt.Errorf("the in-memory program does not outlive a CLI invocation; use the server")
	}

	logger := cfg.NewLogger()
	if !verbose {
		logger.SetLevel(logrus.WarnLevel)
	}

	a := &app{logger: logger}
	store, err := openStore(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { store.Close() })

	programID, err := solana.ParsePublicKey(cfg.Solana.ProgramID)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("program id: %w", err)
	}
	var payer *solana.Keypair
	if cfg.Solana.KeypairPath != "" {
		if payer, err = solana.LoadKeypair(cfg.Solana.KeypairPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("load keypair: %w", err)
		}
	}
	opts := []solana.ClientOption{solana.WithCommitment(cfg.Solana.Commitment)}
	if cfg.Solana.RateLimit > 0 {
		opts = append(opts, solana.WithRateLimit(cfg.Solana.RateLimit, cfg.Solana.RateBurst))
	}
	prog := program.NewRPCClient(solana.NewHTTPClient(cfg.Solana.RPCEndpoint, opts...), programID, payer, logger)

	a.dialWS = func(ctx context.Context) (solana.WSClient, error) {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Commitment = cfg.Solana.Commitment
		wsCfg.Logger = logger
		return solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg)
	}

	fetcher := content.NewGatewayClient(cfg.Content.Gateway,
		content.WithGatewayHTTPClient(&http.Client{Timeout: cfg.ContentTimeout()}))

	a.session = session.New(session.Options{
		Program:          prog,
		Content:          fetcher,
		Store:            store,
		Trader:           cfg.Trader,
		Authority:        cfg.Authority,
		TraderRetries:    cfg.Session.TraderRetries,
		TraderRetryDelay: cfg.TraderRetryDelay(),
		WatchInterval:    cfg.WatchInterval(),
		Logger:           logger,
	})
	if err := a.session.Resume(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, path string) (*sqlitestore.KVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return sqlitestore.Open(ctx, path)
}
