package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"truefantix/internal/config"
	"truefantix/internal/logger"
	"truefantix/internal/models"
	"truefantix/internal/repository"
	"truefantix/internal/search"
	"truefantix/internal/service"
)

func main() {
	var batchSize int
	var dryRun bool
	flag.IntVar(&batchSize, "batch", 100, "Tickets fetched per page")
	flag.BoolVar(&dryRun, "dry-run", false, "Count listable tickets without writing to the index")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting ticket reindex", "batch", batchSize, "dry_run", dryRun)

	if !cfg.Elasticsearch.Enabled() {
		logger.Fatal("ELASTICSEARCH_URL is not configured")
	}

	ctx := context.Background()
	store, err := repository.Open(ctx, cfg.DBDriver, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer store.Close()

	index, err := search.NewTicketIndex(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", "error", err)
	}

	tickets := service.NewServices(service.Deps{Store: store}).Tickets
	if err := reindex(ctx, tickets, index, batchSize, dryRun); err != nil {
		logger.Fatal("Reindex failed", "error", err)
	}

	slog.Info("Ticket reindex completed successfully")
}

// reindex заново отправляет в индекс все билеты, видимые в поиске
func reindex(ctx context.Context, tickets *service.TicketService, index *search.TicketIndex, batchSize int, dryRun bool) error {
	start := time.Now()
	filter := models.TicketFilter{
		Statuses:           []string{models.TicketAvailable},
		VerificationStatus: models.VerificationVerified,
		Limit:              batchSize,
	}

	indexed, failed, page := 0, 0, 1
	for {
		slog.Info("Fetching tickets", "page", page)
		res, err := tickets.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list tickets page %d: %w", page, err)
		}

		for i := range res.Tickets {
			if dryRun {
				indexed++
				continue
			}
			if err := index.IndexTicket(ctx, &res.Tickets[i]); err != nil {
				slog.Error("Failed to index ticket", "ticket_id", res.Tickets[i].ID, "error", err)
				failed++
				continue
			}
			indexed++
		}

		if res.NextCursor == nil {
			break
		}
		filter.Cursor = *res.NextCursor
		page++
	}

	elapsed := time.Since(start)
	slog.Info("Reindex finished",
		"indexed", indexed,
		"failed", failed,
		"duration", elapsed.String())

	if failed > 0 {
		return fmt.Errorf("%d tickets failed to index", failed)
	}
	return nil
}
