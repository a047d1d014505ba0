package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
	"github.com/ariefcatur/go-shop-orders/internal/users"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", cfg.ServiceName))
	if err := cfg.ValidateAPI(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	statusStore := statuses.NewPgStore(db)
	if cfg.SeedStatuses {
		if err := statusStore.EnsureNames(ctx, statuses.WellKnown...); err != nil {
			logger.Fatal("seed statuses", zap.Error(err))
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start()

	metrics := observability.NewMetrics("shop")
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.ServiceName)

	orderSvc := orders.NewService(&orders.PgStore{DB: db}, logger)
	orderSvc.Cache = redisx.NewOrderCache(rdb, cfg.CacheTTL, logger)
	orderSvc.Events = prod
	orderSvc.Observer = metrics
	orderSvc.Producer = cfg.ServiceName

	userSvc := users.NewService(users.NewPgStore(db), tokens, logger)
	if err := userSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:   logger,
		Metrics:  metrics,
		Tokens:   tokens,
		Users:    userSvc,
		Products: catalog.NewService(&catalog.Repo{DB: db}, logger),
		Statuses: statuses.NewRegistry(statusStore, logger),
		Orders:   orderSvc,
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	prod.Close() // flush buffered events, then close the writer
	if err := prod.WaitClosed(ctx2); err != nil {
		logger.Warn("kafka flush incomplete", zap.Error(err))
	}
}
