package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wallet-ledger/internal/config"
	"github.com/wallet-ledger/internal/data/mongo"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/ledger"
	"github.com/wallet-ledger/internal/logger"
	"github.com/wallet-ledger/internal/platform/cache"
	"github.com/wallet-ledger/internal/platform/messaging/consumers"
	"github.com/wallet-ledger/internal/platform/messaging/producers"
	"github.com/wallet-ledger/internal/platform/metrics"
	"github.com/wallet-ledger/internal/platform/persistence"
	"github.com/wallet-ledger/internal/platform/sharding"
	"github.com/wallet-ledger/internal/settlement_processor/consumer"
	"github.com/wallet-ledger/internal/settlement_processor/outbox_poller"
	"github.com/wallet-ledger/internal/settlement_processor/service"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("settlement_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())
	if err := auditRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create audit indexes", "error", err)
		os.Exit(1)
	}

	settlementProducer, err := producers.NewSettlementRequestProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize settlement request producer", "error", err)
		os.Exit(1)
	}

	// A nil DLQ producer reports ErrDLQDisabled; parked messages are then redelivered
	var dlqProducer *producers.DLQProducer
	if cfg.Kafka.DLQTopic != "" {
		dlqProducer, err = producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
		if err != nil {
			log.Error("Failed to initialize DLQ Kafka producer", "error", err)
			os.Exit(1)
		}
	}

	fees := transaction.FeeSchedule{
		Deposit:    cfg.Ledger.DepositFeeRate,
		Withdrawal: cfg.Ledger.WithdrawalFeeRate,
		Transfer:   cfg.Ledger.TransferFeeRate,
	}
	walletCache := cache.NewWalletCache(redisClient, cfg.Redis.WalletTTL, log)
	engine, err := ledger.NewEngine(log, router, shards, fees, ledger.NewFeeRouter(cfg.Ledger.SystemWalletID), walletCache, m)
	if err != nil {
		log.Error("Failed to initialize ledger engine", "error", err)
		os.Exit(1)
	}
	if err := ledger.EnsureSystemWallet(appCtx, log, shards, cfg.Ledger.SystemWalletID); err != nil {
		log.Error("Failed to provision system wallet", "error", err)
		os.Exit(1)
	}

	settlementService, err := service.NewWorkerPoolSettlementService(
		service.NewSettlementService(engine, m, log),
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		log,
	)
	if err != nil {
		log.Error("Failed to initialize settlement worker pool", "error", err)
		os.Exit(1)
	}

	eventHandler := consumer.NewSettlementEventHandler(log, &cfg.Kafka, settlementService, dlqProducer)
	dispatcher := outbox_poller.NewOutboxDispatcher(&cfg.Kafka, settlementProducer, auditRepo, log)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	// One consumer per inbound settlement topic
	kafkaConsumers := make([]*consumers.KafkaConsumer, 0, len(cfg.Kafka.SettlementTopics()))
	for _, topic := range cfg.Kafka.SettlementTopics() {
		handler, err := eventHandler.For(topic)
		if err != nil {
			log.Error("Failed to resolve settlement handler", "topic", topic, "error", err)
			os.Exit(1)
		}
		kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, topic)
		log.Info("Starting Kafka consumer", "topic", topic, "group", cfg.Kafka.ConsumerGroup)
		if err := kafkaConsumer.Subscribe(appCtx, handler); err != nil {
			log.Error("Failed to subscribe", "topic", topic, "error", err)
			os.Exit(1)
		}
		kafkaConsumers = append(kafkaConsumers, kafkaConsumer)
	}

	// One outbox poller per shard
	for _, shard := range shards {
		shard := shard
		poller := outbox_poller.NewPoller(&cfg.Outbox, shard.Index, shard.Outbox, dispatcher, m, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Starting Outbox Poller",
				"shard", router.Name(shard.Index),
				"interval", cfg.Outbox.PollingInterval.String(),
				"batch_size", cfg.Outbox.BatchSize,
			)
			poller.Start(appCtx)
		}()
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	log.Info("Shutting down worker pool", "running_workers", settlementService.Running())
	settlementService.Shutdown()

	log.Info("Waiting for outbox pollers to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All pollers stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	var shutdownErr error
	for _, c := range kafkaConsumers {
		if err := c.Close(); err != nil {
			log.Error("Error closing Kafka consumer", "topic", c.Topic(), "error", err)
			shutdownErr = err
		}
	}

	if err := dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
		shutdownErr = err
	}

	if err := settlementProducer.Close(); err != nil {
		log.Error("Error closing settlement request producer", "error", err)
		shutdownErr = err
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping metrics server", "error", err)
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

	if serviceErr != nil {
		log.Error("Settlement Processor shutdown with errors", "error", serviceErr)
	}
	if shutdownErr != nil {
		log.Error("Settlement Processor shutdown completed with errors")
	} else {
		log.Info("Settlement Processor shutdown completed successfully")
	}
}
