package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/stackfin/paperbroker/internal/config"
	"github.com/stackfin/paperbroker/internal/handlers"
	"github.com/stackfin/paperbroker/internal/indicators"
	"github.com/stackfin/paperbroker/internal/ledger"
	"github.com/stackfin/paperbroker/internal/quotes"
	"github.com/stackfin/paperbroker/internal/rate"
	"github.com/stackfin/paperbroker/internal/users"
	"github.com/stackfin/paperbroker/libs/health"
	"github.com/stackfin/paperbroker/libs/httpmiddleware"
	"github.com/stackfin/paperbroker/libs/kafka"
	"github.com/stackfin/paperbroker/libs/logging"
	"github.com/stackfin/paperbroker/libs/metrics"
	"github.com/stackfin/paperbroker/libs/trace"
)

func main() {
	cfg, err := config.Load(os.Getenv("PB_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ledgerMetrics := ledger.NewMetrics(registry)
	quoteMetrics := quotes.NewMetrics(registry)

	ready := health.NewManager(cfg.App.ServiceName, false)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	source := quotes.NewClient(cfg.Quotes.BaseURL, cfg.Quotes.Timeout, logger, quoteMetrics)
	ledgerStore := ledger.NewPostgresStore(pool, logger)
	userStore := users.NewPostgresStore(pool)

	execOpts := []ledger.ExecutorOption{
		ledger.WithMetrics(ledgerMetrics),
		ledger.WithLockTimeout(cfg.Ledger.LockTimeout),
	}

	var producer *kafka.SyncProducer
	if cfg.Kafka.Enabled {
		kafkaMetrics := kafka.NewProducerMetrics(registry)
		producer, err = kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafkaMetrics)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		execOpts = append(execOpts, ledger.WithPublisher(producer))
	}

	executor := ledger.NewExecutor(ledgerStore, source, cfg.Ledger.StartingCents, logger, execOpts...)
	valuer := ledger.NewValuer(ledgerStore, source, logger, ledgerMetrics)

	var limiter rate.Limiter = rate.NewMemory(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWin)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Pass,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		limiter = rate.NewRedis(rdb, cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWin, "")
	}

	userHandler := users.NewHandler(userStore, logger, cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.Issuer, limiter)
	walletHandler := handlers.NewWalletHandler(executor, valuer, ledgerStore, source, logger, cfg.Auth.JWTSecret)
	indicatorService := indicators.NewService(source, cfg.Tickers, cfg.Quotes.HistoryDays, cfg.Quotes.CacheTTL, logger)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", ready.LivenessHandler)
	router.GET("/readyz", ready.ReadinessHandler)
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	userHandler.RegisterRoutes(router)
	walletHandler.RegisterRoutes(router)
	indicatorService.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	ready.SetReady(true)

	go func() {
		logger.Info("broker http starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DB.ConnectTimeout)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
