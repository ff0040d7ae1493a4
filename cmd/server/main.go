package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/store-inventory/internal/adapter/handler"
	"github.com/rl1809/store-inventory/internal/adapter/storage"
	"github.com/rl1809/store-inventory/internal/config"
	"github.com/rl1809/store-inventory/internal/core/service"
	"github.com/rl1809/store-inventory/internal/platform/metrics"
	"github.com/rl1809/store-inventory/internal/platform/observability"
	"github.com/rl1809/store-inventory/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingOptions{
		Endpoint:   cfg.OtelEndpoint,
		AuthHeader: cfg.OtelAuthHeader,
		URLPath:    config.TracesPath,
	})
	if err != nil {
		logger.Fatal("failed to setup tracing", zap.Error(err))
	}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}

	cache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(registry)

	// Initialize services
	inventoryService := service.NewInventoryService(db, cache, service.WithLogger(logger))
	productService := service.NewProductService(db, service.WithLogger(logger))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterInventoryServiceServer(grpcServer, handler.NewGRPCHandler(inventoryService, serverMetrics, logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(productService, inventoryService, db, serverMetrics, logger)
	router := handler.NewRouter(httpHandler, handler.RouterOptions{
		Logger:         logger,
		Metrics:        serverMetrics,
		RequestTimeout: cfg.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown", zap.Error(err))
	}

	closeCache()
	db.Close()
	logger.Info("connections closed")
}

// openDatabase connects the configured backend and applies the schema when
// AUTO_MIGRATE is set.
func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.DatabaseRepository, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to mysql")

		adapter := storage.NewMySQLAdapter(db)
		if cfg.AutoMigrate {
			if err := adapter.Migrate(ctx); err != nil {
				adapter.Close()
				return nil, err
			}
			logger.Info("schema applied", zap.String("driver", cfg.DBDriver))
		}
		return adapter, nil

	case config.DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		poolCfg.MaxConns = int32(cfg.DBMaxOpenConns)

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to postgres")

		adapter := storage.NewPostgresAdapter(pool)
		if cfg.AutoMigrate {
			if err := adapter.Migrate(ctx); err != nil {
				adapter.Close()
				return nil, err
			}
			logger.Info("schema applied", zap.String("driver", cfg.DBDriver))
		}
		return adapter, nil
	}

	logger.Warn("using in-memory storage, data is lost on restart")
	return storage.NewMemoryAdapter(), nil
}

// openCache returns the idempotency store: Redis when REDIS_ADDR is set,
// process memory otherwise.
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.CacheRepository, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, idempotency keys kept in memory")
		return storage.NewMemoryCache(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil
}
