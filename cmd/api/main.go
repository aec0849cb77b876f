package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/tour-booking-dashboard/internal/adapters/backend"
	"github.com/robertarktes/tour-booking-dashboard/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/tour-booking-dashboard/internal/adapters/mongo"
	"github.com/robertarktes/tour-booking-dashboard/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/tour-booking-dashboard/internal/adapters/redis"
	"github.com/robertarktes/tour-booking-dashboard/internal/adapters/ws"
	"github.com/robertarktes/tour-booking-dashboard/internal/config"
	"github.com/robertarktes/tour-booking-dashboard/internal/dashboard"
	"github.com/robertarktes/tour-booking-dashboard/internal/domain"
	httphandler "github.com/robertarktes/tour-booking-dashboard/internal/http"
	"github.com/robertarktes/tour-booking-dashboard/internal/idempotency"
	"github.com/robertarktes/tour-booking-dashboard/internal/live"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"github.com/robertarktes/tour-booking-dashboard/internal/rateLimit"
	"github.com/robertarktes/tour-booking-dashboard/internal/session"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const reapInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)
	observability.InitMetrics()

	checks := map[string]httphandler.Check{}

	var source dashboard.Backend
	switch cfg.BackendMode {
	case config.BackendSQL:
		pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
		if err != nil {
			log.Fatalf("failed to connect to crdb: %v", err)
		}
		defer pool.Close()
		repo := crdb.NewRepository(pool, cfg.Location)
		checks["crdb"] = repo.Ping
		source = repo
	default:
		source = backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, cfg.Location)
	}

	var (
		rl          *rateLimit.RateLimiter
		idemp       *idempotency.Idempotency
		invalidator httphandler.Invalidator
	)
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		cache := redisadapter.NewCache(redisClient, source, cfg.CacheTTL, cfg.Location, logger)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		source = cache
		invalidator = cache
		idemp = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
		rl = rateLimit.NewRateLimiter(cache, cfg.RateLimitPerMinute, logger)
	}

	var auditor session.Auditor
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		auditor = mongoadapter.NewAuditLogger(mongoClient.Database("tour_dashboard"), logger)
		checks["mongo"] = func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }
	}

	classifier := domain.NewClassifier(cfg.TourDurationDays, cfg.Location)
	views := session.NewRegistry(source, classifier, auditor, session.Options{
		ChartYear:  cfg.ChartYear,
		IdleTTL:    cfg.ViewTTL,
		NewChannel: liveChannels(cfg, logger),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go views.Run(ctx, reapInterval)

	handlers := httphandler.NewHandlers(views, checks, invalidator)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("dashboard api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	if err := views.Shutdown(); err != nil {
		logger.Error("failed to close views: ", err)
	}
	logger.Info("Server exiting")
}

// liveChannels returns the per-view live channel factory for the configured
// source, or nil when live updates are off.
func liveChannels(cfg *config.Config, logger observability.Logger) func() *live.Channel {
	var src live.Source
	switch cfg.LiveSource {
	case config.LiveWebSocket:
		src = ws.NewSource(cfg.NotifyURL, nil)
	case config.LiveRabbit:
		src = rabbit.NewSource(cfg.RabbitURL, cfg.LiveExchange)
	default:
		return nil
	}
	opts := live.Options{Reconnect: cfg.LiveReconnect, MaxBackoff: cfg.LiveMaxBackoff}
	return func() *live.Channel {
		return live.NewChannel(src, opts, logger.WithField("live", cfg.LiveSource))
	}
}
