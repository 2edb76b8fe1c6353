package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/localsignal/gbp-collector/internal/config"
	"github.com/localsignal/gbp-collector/internal/events"
	"github.com/localsignal/gbp-collector/internal/logger"
	"github.com/localsignal/gbp-collector/internal/pipeline"
	"github.com/localsignal/gbp-collector/internal/warehouse"
)

func main() {
	log := logger.New("collector")
	cfg, err := config.LoadCollector()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	loader, err := warehouse.Open(ctx, cfg.Warehouse, log)
	if err != nil {
		log.Error("init warehouse", slog.Any("err", err))
		os.Exit(1)
	}
	defer loader.Close()

	setup, err := pipeline.FromConfig(cfg, log)
	if err != nil {
		log.Error("build pipelines", slog.Any("err", err))
		os.Exit(1)
	}

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	defer publisher.Close()

	failed := false
	for _, name := range cfg.Pipelines {
		source := setup.Sources[name]
		driver := pipeline.NewDriver(source, setup.Lister, loader, setup.Tokens, log)
		if publisher != nil {
			driver = driver.WithPublisher(publisher)
		}

		summary := driver.Run(ctx)
		if summary.Code != http.StatusOK {
			failed = true
			log.Error("pipeline failed",
				slog.String("pipeline", name),
				slog.Int("code", summary.Code),
				slog.String("message", summary.Message),
			)
		}

		if ctx.Err() != nil {
			log.Info("shutdown signal received, stopping remaining pipelines")
			break
		}
	}

	if failed || ctx.Err() != nil {
		os.Exit(1)
	}
}
