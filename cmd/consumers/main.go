package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"truefantix/cmd/consumers/handlers"
	"truefantix/cmd/consumers/jobs"
	"truefantix/internal/config"
	"truefantix/internal/consumers"
	"truefantix/internal/logger"
	"truefantix/internal/messaging"
	"truefantix/internal/models"
	"truefantix/internal/realtime"
	"truefantix/internal/repository"
	"truefantix/internal/search"
	"truefantix/internal/service"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting consumers service...")

	// Override NATS client ID for consumers
	cfg.NATS.ClientID = "truefantix-consumers"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := repository.Open(ctx, cfg.DBDriver, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer store.Close()

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", "error", err)
	}
	defer natsClient.Close()

	deps := service.Deps{
		Store:     store,
		Publisher: natsClient,
		Auth:      cfg.Auth,
		Market:    cfg.Marketplace,
		Currency:  cfg.Stripe.Currency,
	}
	var index *search.TicketIndex
	if cfg.Elasticsearch.Enabled() {
		index, err = search.NewTicketIndex(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, ticket indexing disabled", "error", err)
		} else {
			deps.Search = index
		}
	}
	services := service.NewServices(deps)

	// Sweeps работают и без NATS
	expireJob := jobs.NewSweepJob("reservations_expire", cfg.Marketplace.SweepInterval, func(ctx context.Context) (int, error) {
		res, err := services.Orders.ExpireReservations(ctx)
		if err != nil {
			return 0, err
		}
		return res.OrdersCancelled, nil
	})
	escrowJob := jobs.NewSweepJob("escrow_timeout", cfg.Marketplace.SweepInterval, func(ctx context.Context) (int, error) {
		res, err := services.Escrow.SweepTimeouts(ctx)
		if err != nil {
			return 0, err
		}
		return res.Processed, nil
	})
	expireJob.Start(ctx)
	escrowJob.Start(ctx)

	var consumerService *consumers.ConsumerService
	if natsClient.Connected() {
		consumerService = consumers.NewConsumerService(natsClient,
			consumers.NewHandlers(services.Notifications, realtime.NewNotifier(cfg.PubNub)))
		if index != nil {
			indexer := handlers.NewSearchSyncHandler(services.Tickets, index)
			consumerService.Handle(models.EventTicketListed, indexer.HandleTicketChanged)
			consumerService.Handle(models.EventTicketUpdated, indexer.HandleTicketChanged)
		}
		if err := consumerService.Start(); err != nil {
			logger.Fatal("Failed to start consumers", "error", err)
		}
	} else {
		slog.Warn("NATS is not configured, only sweep jobs are running")
	}

	slog.Info("Consumers service started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down consumers service...")

	expireJob.Stop()
	escrowJob.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if consumerService != nil {
		if err := consumerService.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}

	slog.Info("Consumers service stopped")
}
