package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ledger-service/internal/broker"
	"ledger-service/internal/cache"
	"ledger-service/internal/config"
	"ledger-service/internal/database"
	"ledger-service/internal/repositories/kafkarepo"
	"ledger-service/internal/repositories/postgresrepo"
	"ledger-service/internal/repositories/redisrepo"
	"ledger-service/internal/services"
	"ledger-service/internal/transport/http/handler"
	"ledger-service/internal/worker"
)

type App struct {
	cfg              *config.Config
	log              *logrus.Logger
	httpServer       *http.Server
	partitionManager *worker.PartitionManager
	lockReaper       *worker.LockReaper
}

func New() (*App, error) {
	a := new(App)

	// Initialize config
	a.cfg = config.New()

	a.log = logrus.New()
	a.log.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()

	// Connect to database
	db, err := database.NewPostgres(a.cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	if err := database.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("database migration error: %w", err)
	}

	// Connect to cache
	redis, err := cache.NewRedis(ctx, a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("cache connection error: %w", err)
	}

	// Connect to broker
	kafka := broker.NewKafkaWriter(a.cfg.Kafka)

	// Initialize repositories
	postgresRepo := postgresrepo.NewWalletRepository(db)
	redisRepo := redisrepo.NewWalletRepository(redis)
	kafkaRepo := kafkarepo.NewNotificationRepository(kafka)

	// Initialize services
	ledgerService := services.NewWalletLedgerService(
		services.NewSQLStore(postgresRepo), redisRepo, kafkaRepo, a.log,
	)
	ledgerService.SetTopupLockTTL(a.cfg.Worker.TopupLockTTL)

	// Initialize mux and handlers
	mux := http.NewServeMux()

	handler.NewWallet(mux, ledgerService)
	handler.NewTopUp(mux, ledgerService)
	handler.NewEscrow(mux, ledgerService)

	// Initialize http server
	a.httpServer = &http.Server{
		Addr:         a.cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// Background workers
	a.partitionManager = worker.NewPartitionManager(a.cfg, ledgerService, a.log)
	a.lockReaper = worker.NewLockReaper(ledgerService, a.cfg.Worker.LockCleanupInterval, a.log)

	return a, nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		a.log.Info("received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Error("http server shutdown error")
		}
		cancel()
	}()

	go func() {
		if err := a.partitionManager.Start(ctx); err != nil {
			a.log.WithError(err).Error("partition manager error")
		}
	}()
	go a.lockReaper.Run(ctx)

	a.log.Infof("starting HTTP server on %s", a.cfg.Server.Port)
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}

	// Keep workers draining until shutdown completes.
	<-ctx.Done()
	return nil
}
