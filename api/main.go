package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/localsignal/gbp-collector/internal/config"
	"github.com/localsignal/gbp-collector/internal/events"
	"github.com/localsignal/gbp-collector/internal/logger"
	"github.com/localsignal/gbp-collector/internal/pipeline"
	"github.com/localsignal/gbp-collector/internal/warehouse"
)

// collectTimeout bounds one triggered pipeline run end to end.
const collectTimeout = 10 * time.Minute

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
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

	setup, err := pipeline.FromConfig(&cfg.Collector, log)
	if err != nil {
		log.Error("build pipelines", slog.Any("err", err))
		os.Exit(1)
	}

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	defer publisher.Close()

	srv := &server{log: log, loader: loader, setup: setup, publisher: publisher}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	r.Post("/v1/collect/{pipeline}", srv.handleCollect)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      collectTimeout + 30*time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log       *slog.Logger
	loader    warehouse.Loader
	setup     *pipeline.Setup
	publisher *events.Publisher
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.loader.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCollect triggers one pipeline run. The request body is ignored; the
// response is the run summary and its status code.
func (s *server) handleCollect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "pipeline")
	source, ok := s.setup.Sources[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown pipeline: " + name})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), collectTimeout)
	defer cancel()

	driver := pipeline.NewDriver(source, s.setup.Lister, s.loader, s.setup.Tokens, s.log)
	if s.publisher != nil {
		driver = driver.WithPublisher(s.publisher)
	}

	summary := driver.Run(ctx)
	writeJSON(w, summary.Code, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
