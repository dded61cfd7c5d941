package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/adapter/handler"
	"github.com/rl1809/inventory/internal/adapter/messaging"
	"github.com/rl1809/inventory/internal/adapter/storage"
	"github.com/rl1809/inventory/internal/auth"
	"github.com/rl1809/inventory/internal/config"
	"github.com/rl1809/inventory/internal/core/service"
	"github.com/rl1809/inventory/internal/logger"
	"github.com/rl1809/inventory/internal/observability"
	"github.com/rl1809/inventory/internal/port"
)

const (
	eventWorkers        = 4
	eventQueueSize      = 10000
	healthCheckInterval = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

// openStore returns the repository selected by DB_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (port.DatabaseRepository, error) {
	if cfg.DBDriver == config.DriverMemory {
		return storage.NewMemoryAdapter(), nil
	}
	dialect := storage.Dialect(cfg.DBDriver)
	db, err := storage.OpenSQL(ctx, dialect, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return storage.NewSQLAdapter(db, dialect), nil
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("storage ready", zap.String("driver", cfg.DBDriver))

	checks := map[string]func(context.Context) error{"database": store.Ping}

	var cache port.CacheRepository = storage.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			PoolSize: 100,
		})
		defer rdb.Close()
		redisAdapter := storage.NewRedisAdapter(rdb)
		if err := redisAdapter.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		cache = redisAdapter
		checks["redis"] = redisAdapter.Ping
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	var publisher port.EventPublisher = messaging.NoopPublisher{}
	if cfg.KafkaBroker != "" {
		publisher = messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic))
		log.Info("publishing events to kafka",
			zap.String("broker", cfg.KafkaBroker),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	events := service.NewEventDispatcher(publisher, log, eventQueueSize)
	events.Start(eventWorkers)

	audit := service.NewAuditService(store, log)
	svc := handler.Services{
		Spaces:   service.NewSpaceService(store, audit, log, cfg.MaxSpacesPerOwner),
		Products: service.NewProductService(store, audit, log, cfg.StockRetryAttempts),
		Ledger:   service.NewLedgerService(store, cache, events, audit, log, cfg.StockRetryAttempts),
		Insights: service.NewInsightsService(store, cfg.MaxSpacesPerOwner),
		Audit:    audit,
	}

	monitor := handler.NewHealthMonitor(checks, log)
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx, healthCheckInterval)

	grpcServer := handler.NewGRPCServer(monitor, log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	routes := handler.NewHTTPHandler(svc, auth.NewManager(cfg.JWTSecret, 0), monitor, log,
		handler.WithTrustedProxy(cfg.TrustProxyHeaders)).Routes()
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		log.Error("HTTP server error", zap.Error(err))
	}

	monitor.Shutdown()
	stopMonitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	events.Close()
	if err := publisher.Close(); err != nil {
		log.Warn("failed to close publisher", zap.Error(err))
	}
	log.Info("event workers stopped")
	return nil
}
