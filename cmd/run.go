package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ocw-node/config"
	"ocw-node/db"
	"ocw-node/fetcher"
	"ocw-node/handlers"
	"ocw-node/keystore"
	"ocw-node/ledger"
	"ocw-node/logger"
	"ocw-node/node"
	"ocw-node/repository"
	"ocw-node/routers"
	"ocw-node/signer"
	"ocw-node/txpool"
	"ocw-node/worker"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Author blocks, run the off-chain worker and serve the diagnostics API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer logger.Logger.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
}

func openIndex(path string) (*db.LevelDB, error) {
	if path == "" {
		return db.NewMemLevelDB()
	}
	return db.NewLevelDB(path)
}

func openState(path string) (*db.PebbleStore, error) {
	if path == "" {
		return db.NewMemPebbleStore()
	}
	return db.NewPebbleStore(path)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger.Logger.Info("Starting off-chain worker node...")

	ldb, err := openIndex(cfg.LevelDB.Path)
	if err != nil {
		return fmt.Errorf("open leveldb: %w", err)
	}
	defer ldb.Close()

	state, err := openState(cfg.Pebble.Path)
	if err != nil {
		return fmt.Errorf("open pebble: %w", err)
	}
	defer state.Close()

	keys, err := keystore.FromSeeds(cfg.Keystore.Seeds)
	if err != nil {
		return err
	}
	if len(keys.Identities()) == 0 {
		logger.Logger.Warn("No signing identities configured; prices will be fetched but never submitted")
	}
	revoked, err := cfg.Pool.RevokedAccounts()
	if err != nil {
		return err
	}

	index := repository.NewIndexRepository(ldb)
	l := ledger.New(state, index)
	pool := txpool.New(cfg.Pool.Capacity, revoked)

	sign := signer.New(keys, pool)
	client := fetcher.NewClient(cfg.Fetcher.Endpoint, cfg.Fetcher.UserAgent, cfg.Fetcher.Deadline())
	w := worker.New(client, sign, index)
	n := node.New(l, pool, w, node.Options{
		BlockTime:     cfg.Chain.BlockTime(),
		QueueDepth:    cfg.Chain.QueueDepth,
		MaxExtrinsics: cfg.Chain.MaxExtrinsics,
	})

	r := mux.NewRouter()
	routers.RegisterRoutes(r, handlers.NewHandler(l, index, keys, sign))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Server stopped", zap.Error(err))
			cancel()
		}
	}()
	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	err = n.Run(ctx)

	logger.Logger.Info("Shutdown signal received, exiting...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Logger.Error("Shutdown", zap.Error(serr))
	}
	return err
}
