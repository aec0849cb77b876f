package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robertarktes/tour-booking-dashboard/internal/adapters/rabbit"
	"github.com/robertarktes/tour-booking-dashboard/internal/adapters/ws"
	"github.com/robertarktes/tour-booking-dashboard/internal/config"
	"github.com/robertarktes/tour-booking-dashboard/internal/live"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"github.com/robertarktes/tour-booking-dashboard/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required")
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel).WithField("component", "notify-relay")
	observability.InitMetrics()

	pub, err := rabbit.NewPublisher(cfg.RabbitURL, cfg.LiveExchange)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer pub.Close()

	channel := live.NewChannel(ws.NewSource(cfg.NotifyURL, nil), live.Options{
		Reconnect:  true,
		MaxBackoff: cfg.LiveMaxBackoff,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n, err := relay.New(channel, pub, logger).Run(ctx)
	logger.WithField("published", n).Info("Shutdown notification relay")
	if err != nil && ctx.Err() == nil {
		log.Fatalf("relay stopped: %v", err)
	}
}
