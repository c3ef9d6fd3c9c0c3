package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ticket_reservation/internal/catalog"
	"github.com/Skotchmaster/ticket_reservation/internal/config"
	"github.com/Skotchmaster/ticket_reservation/internal/httpserver"
	"github.com/Skotchmaster/ticket_reservation/internal/metrics"
	"github.com/Skotchmaster/ticket_reservation/internal/middleware/auth"
	"github.com/Skotchmaster/ticket_reservation/internal/models"
	"github.com/Skotchmaster/ticket_reservation/internal/ratelimit"
	"github.com/Skotchmaster/ticket_reservation/internal/repo"
	"github.com/Skotchmaster/ticket_reservation/internal/search"
	"github.com/Skotchmaster/ticket_reservation/internal/service"
	pkgcfg "github.com/Skotchmaster/ticket_reservation/pkg/config"
	pkgdb "github.com/Skotchmaster/ticket_reservation/pkg/db"
	"github.com/Skotchmaster/ticket_reservation/pkg/logging"
	"github.com/Skotchmaster/ticket_reservation/pkg/mykafka"
	"github.com/Skotchmaster/ticket_reservation/pkg/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	pkgcfg.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	pkgcfg.MustOneOf(cfg.DBDriver, "DB_DRIVER", pkgdb.DriverPostgres, pkgdb.DriverSQLite)

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := pkgdb.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	var publisher service.EventPublisher
	var producer *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		publisher = producer
	} else {
		logger.Warn("kafka disabled, events are not published")
	}

	var limiter service.LoginLimiter = ratelimit.NewMemoryLimiter(cfg.LoginMaxAttempts, cfg.LoginWindow)
	var accountLimiter service.LoginLimiter = ratelimit.NewMemoryLimiter(cfg.LoginMaxAccountAttempts, cfg.LoginWindow)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = ratelimit.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			logger.Warn("redis unavailable, login throttling is per instance", "error", err)
		} else {
			limiter = ratelimit.NewRedisLimiter(redisClient, ratelimit.KeyPrefix, cfg.LoginMaxAttempts, cfg.LoginWindow)
			accountLimiter = ratelimit.NewRedisLimiter(redisClient, ratelimit.AccountKeyPrefix, cfg.LoginMaxAccountAttempts, cfg.LoginWindow)
		}
	}

	var index catalog.EventIndex
	if cfg.ESURL != "" {
		esClient, err := search.NewClient(ctx, search.Config{
			URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword, Index: cfg.ESIndex,
		})
		if err != nil {
			logger.Warn("elasticsearch unavailable, search falls back to the database", "error", err)
		} else if err := esClient.EnsureIndex(ctx); err != nil {
			logger.Warn("elasticsearch index setup failed", "error", err)
		} else {
			index = esClient
		}
	}

	m := metrics.New("ticket_reservation")
	r := &repo.GormRepo{DB: db}
	codec := tokens.NewCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL)

	svc := &service.AuthService{
		Users:          r,
		Sessions:       r,
		Tokens:         codec,
		Events:         publisher,
		Limiter:        limiter,
		AccountLimiter: accountLimiter,
		Cfg: service.Config{
			AccessTTL:           cfg.AccessTTL,
			RefreshTTL:          cfg.RefreshTTL,
			RevokeOtherSessions: cfg.RevokeOtherSessions,
			EventTopic:          cfg.KafkaTopic,
		},
	}

	catalogHandler := &catalog.Handler{Store: &catalog.Store{DB: db}, Index: index}
	if publisher != nil {
		catalogHandler.Events = publisher
	}

	e := httpserver.New(&httpserver.Deps{
		Logger:  logger,
		Auth:    &httpserver.AuthHandler{Svc: svc, Cookie: httpserver.CookieConfig{Secure: cfg.CookieSecure, TTL: cfg.RefreshCookieTTL}, Metrics: m},
		Catalog: catalogHandler,
		Gate:    &auth.Gate{Tokens: codec, Users: r, Sessions: r, Metrics: m},
		Metrics: m,
		Ready:   readiness(db, redisClient),

		TrustedProxies: cfg.TrustedProxies,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	go func() {
		<-quit
		logger.Error("force exit")
		os.Exit(1)
	}()

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := pkgdb.Close(db); err != nil {
		logger.Error("db close error", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func readiness(db *gorm.DB, rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return err
		}
		if rdb != nil {
			return rdb.Ping(ctx).Err()
		}
		return nil
	}
}
