package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wallet-ledger/internal/config"
	"github.com/wallet-ledger/internal/data/mongo"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
	"github.com/wallet-ledger/internal/ledger"
	"github.com/wallet-ledger/internal/logger"
	"github.com/wallet-ledger/internal/platform/cache"
	"github.com/wallet-ledger/internal/platform/metrics"
	"github.com/wallet-ledger/internal/platform/persistence"
	"github.com/wallet-ledger/internal/platform/sharding"
	"github.com/wallet-ledger/internal/wallet_api"
	"github.com/wallet-ledger/internal/wallet_api/service"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("wallet_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	// Every shard is migrated before it is opened
	shardDBs, err := persistence.NewPostgresShards(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL shards", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisClient, err := cache.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	router, err := sharding.NewRouter(cfg.Ledger.ShardCount)
	if err != nil {
		log.Error("Failed to initialize shard router", "error", err)
		os.Exit(1)
	}

	shards := ledger.NewShards(log, shardDBs)
	walletCache := cache.NewWalletCache(redisClient, cfg.Redis.WalletTTL, log)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	fees := transaction.FeeSchedule{
		Deposit:    cfg.Ledger.DepositFeeRate,
		Withdrawal: cfg.Ledger.WithdrawalFeeRate,
		Transfer:   cfg.Ledger.TransferFeeRate,
	}
	engine, err := ledger.NewEngine(log, router, shards, fees, ledger.NewFeeRouter(cfg.Ledger.SystemWalletID), walletCache, m)
	if err != nil {
		log.Error("Failed to initialize ledger engine", "error", err)
		os.Exit(1)
	}

	if err := ledger.EnsureSystemWallet(appCtx, log, shards, cfg.Ledger.SystemWalletID); err != nil {
		log.Error("Failed to provision system wallet", "error", err)
		os.Exit(1)
	}

	walletRepos := make([]wallet.Repository, 0, len(shards))
	for _, shard := range shards {
		walletRepos = append(walletRepos, shard.Wallets)
	}
	walletService, err := service.NewWalletService(log, router, walletRepos, walletCache, auditRepo, cfg.Ledger.SystemWalletID, m)
	if err != nil {
		log.Error("Failed to initialize wallet service", "error", err)
		os.Exit(1)
	}
	transactionService := service.NewTransactionService(log, engine)

	server := wallet_api.NewServer(log, cfg, walletService, transactionService, registry)
	log.Info("REST server initialized", "shards", router.Count())

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Drain requests before closing the stores they use
	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}

	for _, db := range shardDBs {
		db.Close()
	}

	if err := redisClient.Close(); err != nil {
		log.Error("Error closing Redis client", "error", err)
		shutdownErr = err
	}

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if shutdownErr != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
