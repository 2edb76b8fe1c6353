package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localsignal/gbp-collector/internal/config"
	"github.com/localsignal/gbp-collector/internal/logger"
	"github.com/localsignal/gbp-collector/internal/warehouse"
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Retry warehouse connection with backoff
	var loader warehouse.Loader
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		loader, err = warehouse.Open(ctx, cfg.Warehouse, log)
		if err != nil {
			log.Warn("failed to create warehouse loader, retrying",
				slog.Any("err", err),
				slog.Int("attempt", i+1),
				slog.Int("max_retries", maxRetries),
			)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if pingErr := loader.Ping(pingCtx); pingErr == nil {
				cancel()
				break
			} else {
				log.Warn("warehouse ping failed, retrying",
					slog.Any("err", pingErr),
					slog.Int("attempt", i+1),
					slog.Int("max_retries", maxRetries),
					slog.Duration("retry_in", retryDelay),
				)
			}
			cancel()
			loader.Close()
			loader = nil
		}

		select {
		case <-time.After(retryDelay):
			// Continue to next attempt
		case <-ctx.Done():
			log.Info("shutdown signal received during startup")
			os.Exit(0)
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}

	if loader == nil {
		log.Error("failed to connect to warehouse after retries")
		os.Exit(1)
	}
	defer loader.Close()

	log.Info("connected to warehouse", slog.String("driver", cfg.Driver))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	// Run immediately on start
	runOnce(ctx, log, loader, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, loader, cfg)
		}
	}
}

// tables enumerates every pruning target with its partition column.
func tables(cfg *config.Retention) []warehouse.Table {
	return []warehouse.Table{
		{Name: cfg.ImpressionsTable, PartitionColumn: "date"},
		{Name: cfg.KeywordsTable, PartitionColumn: "collection_date"},
		{Name: cfg.StatusTable, PartitionColumn: "check_date"},
	}
}

func runOnce(ctx context.Context, log *slog.Logger, loader warehouse.Loader, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-cfg.MaxAge).UTC().Format("2006-01-02")

	for _, table := range tables(cfg) {
		deleted, err := loader.PruneBefore(subCtx, table, cutoff)
		if err != nil {
			log.Warn("prune failed (will retry on next interval)",
				slog.Any("err", err),
				slog.String("table", table.Name),
			)
			continue
		}

		if deleted > 0 {
			log.Info("pruned old partitions",
				slog.String("table", table.Name),
				slog.String("cutoff", cutoff),
				slog.Int64("deleted", deleted),
			)
		} else {
			log.Debug("nothing to prune", slog.String("table", table.Name))
		}
	}
}
